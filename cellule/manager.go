package cellule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cellule-dashboard/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	// ResetConfirmation must be typed (any case) to wipe the database.
	ResetConfirmation = "CONFIRMER"

	// AnonymousRequester replaces a blank requester name.
	AnonymousRequester = "Anonymous"

	// RateWindowDays is the trailing period of the overview attendance rate.
	RateWindowDays = 30

	recentPrayerCount = 10
)

// CellManager is a thin façade over the Database: it validates input, fills
// in defaults and keeps CLI and HTTP code simple.
type CellManager struct {
	db  *Database
	log *logrus.Logger
	now func() time.Time
}

// NewCellManager opens (or creates) the SQLite database at dbPath.
func NewCellManager(dbPath string, log *logrus.Logger) (*CellManager, error) {
	db, err := NewDatabase(dbPath, log)
	if err != nil {
		return nil, err
	}
	return &CellManager{db: db, log: db.log, now: time.Now}, nil
}

// Close closes the underlying database.
func (cm *CellManager) Close() error { return cm.db.Close() }

// Database exposes the storage layer for raw reads and writes.
func (cm *CellManager) Database() *Database { return cm.db }

func (cm *CellManager) today() string { return cm.now().Format(DateLayout) }

func (cm *CellManager) reject(op string, err error) error {
	metrics.ObserveRejection(op)
	cm.log.WithFields(logrus.Fields{"operation": op, "reason": err}).Warn("input rejected")
	return err
}

// ------------------ Members ------------------

// AddMember registers a member joining today. An empty role means RoleMember.
func (cm *CellManager) AddMember(ctx context.Context, name, phone, email string, role Role) (int64, error) {
	const op = "add_member"
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, cm.reject(op, invalid("name", ErrNameRequired))
	}
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() {
		return 0, cm.reject(op, invalid("role", fmt.Errorf("%w %q", ErrInvalidRole, role)))
	}

	id, err := cm.db.AddMember(ctx, name, strings.TrimSpace(phone), strings.TrimSpace(email), role, cm.today())
	metrics.ObserveOperation(op, err)
	if err != nil {
		return 0, err
	}
	cm.log.WithFields(logrus.Fields{"id": id, "role": role}).Info("member added")
	return id, nil
}

func (cm *CellManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	return cm.db.GetMember(ctx, id)
}

func (cm *CellManager) Members(ctx context.Context) ([]*Member, error) { return cm.db.Members(ctx) }

// ------------------ Attendance ------------------

// AddAttendance records presence for memberID on the given day. The member
// is not looked up; callers pick it from the member list.
func (cm *CellManager) AddAttendance(ctx context.Context, memberID int64, day time.Time, present bool, note string) (int64, error) {
	const op = "add_attendance"
	id, err := cm.db.AddAttendance(ctx, memberID, day.Format(DateLayout), present, strings.TrimSpace(note))
	metrics.ObserveOperation(op, err)
	if err != nil {
		return 0, err
	}
	cm.log.WithFields(logrus.Fields{"id": id, "member_id": memberID, "present": present}).Info("attendance recorded")
	return id, nil
}

func (cm *CellManager) Attendance(ctx context.Context) ([]*Attendance, error) {
	return cm.db.Attendance(ctx)
}

// AttendanceBetween returns records between from and to, newest first.
func (cm *CellManager) AttendanceBetween(ctx context.Context, from, to time.Time) ([]*Attendance, error) {
	records, err := cm.db.Attendance(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAttendance(records, from, to), nil
}

// AttendanceRate is the present share over the trailing windowDays.
func (cm *CellManager) AttendanceRate(ctx context.Context, windowDays int) (Rate, error) {
	records, err := cm.db.Attendance(ctx)
	if err != nil {
		return Rate{}, err
	}
	return AttendanceRate(records, windowDays, cm.now()), nil
}

func (cm *CellManager) DailyAttendanceRate(ctx context.Context) ([]DailyRate, error) {
	records, err := cm.db.Attendance(ctx)
	if err != nil {
		return nil, err
	}
	return DailyAttendanceRate(records), nil
}

// ------------------ Prayers ------------------

// AddPrayer stores an open prayer request dated today.
func (cm *CellManager) AddPrayer(ctx context.Context, requester, content string) (int64, error) {
	const op = "add_prayer"
	if strings.TrimSpace(content) == "" {
		return 0, cm.reject(op, invalid("content", ErrContentRequired))
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = AnonymousRequester
	}

	id, err := cm.db.AddPrayer(ctx, requester, content, cm.today(), StatusOpen)
	metrics.ObserveOperation(op, err)
	if err != nil {
		return 0, err
	}
	cm.log.WithField("id", id).Info("prayer request added")
	return id, nil
}

// UpdatePrayerStatus moves a prayer between open and answered. Unknown ids
// are silently ignored.
func (cm *CellManager) UpdatePrayerStatus(ctx context.Context, id int64, status PrayerStatus) error {
	const op = "update_prayer_status"
	if !status.Valid() {
		return cm.reject(op, invalid("status", fmt.Errorf("%w: %q", ErrInvalidStatus, status)))
	}
	n, err := cm.db.UpdatePrayerStatus(ctx, id, status)
	metrics.ObserveOperation(op, err)
	if err != nil {
		return err
	}
	cm.log.WithFields(logrus.Fields{"id": id, "status": status, "rows": n}).Info("prayer status updated")
	return nil
}

func (cm *CellManager) Prayers(ctx context.Context) ([]*Prayer, error) { return cm.db.Prayers(ctx) }

// ------------------ Overview ------------------

// Overview gathers the landing-page figures.
func (cm *CellManager) Overview(ctx context.Context) (*Overview, error) {
	members, err := cm.db.Members(ctx)
	if err != nil {
		return nil, err
	}
	prayers, err := cm.db.Prayers(ctx)
	if err != nil {
		return nil, err
	}
	records, err := cm.db.Attendance(ctx)
	if err != nil {
		return nil, err
	}
	now := cm.now()
	return &Overview{
		Members:        len(members),
		OpenPrayers:    CountOpen(prayers),
		AttendanceRate: AttendanceRate(records, RateWindowDays, now),
		LastUpdated:    now.Format("2006-01-02 15:04"),
		RecentPrayers:  RecentPrayers(prayers, recentPrayerCount),
	}, nil
}

// ------------------ Export ------------------

// Table returns one of "members", "attendance" or "prayers" as a Table.
func (cm *CellManager) Table(ctx context.Context, name string) (*Table, error) {
	switch name {
	case tableMembers:
		return cm.db.MembersTable(ctx)
	case tableAttendance:
		return cm.db.AttendanceTable(ctx)
	case tablePrayers:
		return cm.db.PrayersTable(ctx)
	}
	return nil, invalid("table", fmt.Errorf("%w %q", ErrUnknownTable, name))
}

// CSVName maps a table name to its export file name.
func CSVName(table string) string {
	switch table {
	case tableMembers:
		return MembersCSV
	case tableAttendance:
		return AttendanceCSV
	case tablePrayers:
		return PrayersCSV
	}
	return table + ".csv"
}

func (cm *CellManager) ExportAll(ctx context.Context) ([]byte, error) {
	data, err := cm.db.ExportAll(ctx)
	metrics.ObserveOperation("export", err)
	return data, err
}

func (cm *CellManager) ExportAllToFile(ctx context.Context, path string) error {
	err := cm.db.ExportAllToFile(ctx, path)
	metrics.ObserveOperation("export", err)
	if err == nil {
		cm.log.WithField("path", path).Info("archive written")
	}
	return err
}

// ------------------ Maintenance ------------------

// ConfirmsReset reports whether input matches ResetConfirmation, ignoring
// case and surrounding whitespace.
func ConfirmsReset(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), ResetConfirmation)
}

// ResetDatabase wipes all data when confirmation matches. A mismatch is a
// declined action: it returns false and touches nothing.
func (cm *CellManager) ResetDatabase(ctx context.Context, confirmation string) (bool, error) {
	if !ConfirmsReset(confirmation) {
		cm.log.Info("reset not confirmed")
		return false, nil
	}
	err := cm.db.Reset(ctx)
	metrics.ObserveOperation("reset", err)
	if err != nil {
		return false, err
	}
	return true, nil
}
