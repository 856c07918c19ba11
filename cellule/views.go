package cellule

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// DateLayout is the storage format of every date column.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Datasets shared by the typed views and the CSV export
// ---------------------------------------------------------------------------

func membersDataset() *goqu.SelectDataset {
	return dialect.From(tableMembers).
		Select("id", "name", "phone", "email", "role", "joined").
		Order(goqu.C("id").Asc())
}

func attendanceDataset() *goqu.SelectDataset {
	return dialect.From(goqu.T(tableAttendance).As("a")).
		LeftJoin(goqu.T(tableMembers).As("m"), goqu.On(goqu.I("a.member_id").Eq(goqu.I("m.id")))).
		Select(
			goqu.I("a.id"),
			goqu.I("a.member_id"),
			goqu.I("m.name").As("member_name"),
			goqu.I("a.attend_date"),
			goqu.I("a.present"),
			goqu.I("a.note"),
		).
		Order(goqu.I("a.id").Asc())
}

// Most recent first; same-day prayers keep insertion order.
func prayersDataset() *goqu.SelectDataset {
	return dialect.From(tablePrayers).
		Select("id", "requester", "content", "created", "status").
		Order(goqu.C("created").Desc(), goqu.C("id").Asc())
}

func scanMember(rows *sql.Rows) (*Member, error) {
	var (
		m                          Member
		phone, email, role, joined sql.NullString
	)
	if err := rows.Scan(&m.ID, &m.Name, &phone, &email, &role, &joined); err != nil {
		return nil, err
	}
	m.Phone, m.Email, m.Role, m.Joined = phone.String, email.String, Role(role.String), joined.String
	return &m, nil
}

func scanAttendance(rows *sql.Rows) (*Attendance, error) {
	var (
		a                Attendance
		memberID         sql.NullInt64
		name, date, note sql.NullString
	)
	if err := rows.Scan(&a.ID, &memberID, &name, &date, &a.Present, &note); err != nil {
		return nil, err
	}
	a.MemberID, a.AttendDate, a.Note = memberID.Int64, date.String, note.String
	if name.Valid {
		a.MemberName = &name.String
	}
	return &a, nil
}

func scanPrayer(rows *sql.Rows) (*Prayer, error) {
	var (
		p                           Prayer
		requester, created, status sql.NullString
	)
	if err := rows.Scan(&p.ID, &requester, &p.Content, &created, &status); err != nil {
		return nil, err
	}
	p.Requester, p.Created, p.Status = requester.String, created.String, PrayerStatus(status.String)
	return &p, nil
}

// ---------------------------------------------------------------------------
// Typed views
// ---------------------------------------------------------------------------

// Members returns every member.
func (d *Database) Members(ctx context.Context) ([]*Member, error) {
	members := []*Member{}
	err := d.scanDataset(ctx, membersDataset(), func(rows *sql.Rows) error {
		m, err := scanMember(rows)
		if err != nil {
			return err
		}
		members = append(members, m)
		return nil
	})
	return members, err
}

// Attendance returns every attendance record with the member's name attached.
func (d *Database) Attendance(ctx context.Context) ([]*Attendance, error) {
	records := []*Attendance{}
	err := d.scanDataset(ctx, attendanceDataset(), func(rows *sql.Rows) error {
		a, err := scanAttendance(rows)
		if err != nil {
			return err
		}
		records = append(records, a)
		return nil
	})
	return records, err
}

// Prayers returns every prayer request, most recent first.
func (d *Database) Prayers(ctx context.Context) ([]*Prayer, error) {
	prayers := []*Prayer{}
	err := d.scanDataset(ctx, prayersDataset(), func(rows *sql.Rows) error {
		p, err := scanPrayer(rows)
		if err != nil {
			return err
		}
		prayers = append(prayers, p)
		return nil
	})
	return prayers, err
}

func (d *Database) MembersTable(ctx context.Context) (*Table, error) {
	return d.readDataset(ctx, membersDataset())
}

func (d *Database) AttendanceTable(ctx context.Context) (*Table, error) {
	return d.readDataset(ctx, attendanceDataset())
}

func (d *Database) PrayersTable(ctx context.Context) (*Table, error) {
	return d.readDataset(ctx, prayersDataset())
}

// ---------------------------------------------------------------------------
// Aggregates
// ---------------------------------------------------------------------------

// Rate is an attendance percentage that may be undefined when no record
// falls in the period. An undefined rate is never reported as 0%.
type Rate struct {
	Percent float64
	Valid   bool
}

func (r Rate) String() string {
	if !r.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", r.Percent)
}

func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Percent)
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	return t, err == nil
}

// AttendanceRate computes the share of present records whose date lies in
// [now - windowDays, now]. Records with an unreadable date are ignored.
func AttendanceRate(records []*Attendance, windowDays int, now time.Time) Rate {
	lower := now.AddDate(0, 0, -windowDays)
	var present, total int
	for _, r := range records {
		day, ok := parseDate(r.AttendDate, now.Location())
		if !ok || day.Before(lower) || day.After(now) {
			continue
		}
		total++
		if r.Present {
			present++
		}
	}
	if total == 0 {
		return Rate{}
	}
	return Rate{Percent: float64(present) / float64(total) * 100, Valid: true}
}

// DailyAttendanceRate groups records by meeting date, oldest first.
func DailyAttendanceRate(records []*Attendance) []DailyRate {
	type tally struct{ present, total int }
	byDate := map[string]*tally{}
	for _, r := range records {
		day, ok := parseDate(r.AttendDate, time.UTC)
		if !ok {
			continue
		}
		key := day.Format(DateLayout)
		t := byDate[key]
		if t == nil {
			t = &tally{}
			byDate[key] = t
		}
		t.total++
		if r.Present {
			t.present++
		}
	}

	rates := make([]DailyRate, 0, len(byDate))
	for date, t := range byDate {
		rates = append(rates, DailyRate{Date: date, Rate: float64(t.present) / float64(t.total) * 100})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Date < rates[j].Date })
	return rates
}

// FilterAttendance keeps records dated between from and to (both inclusive,
// compared by calendar day) and orders them newest first.
func FilterAttendance(records []*Attendance, from, to time.Time) []*Attendance {
	lo, hi := from.Format(DateLayout), to.Format(DateLayout)
	out := []*Attendance{}
	for _, r := range records {
		day, ok := parseDate(r.AttendDate, time.UTC)
		if !ok {
			continue
		}
		if key := day.Format(DateLayout); key >= lo && key <= hi {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttendDate > out[j].AttendDate })
	return out
}

// AttendanceBounds returns the earliest and latest meeting dates on record.
func AttendanceBounds(records []*Attendance) (first, last time.Time, ok bool) {
	for _, r := range records {
		day, valid := parseDate(r.AttendDate, time.UTC)
		if !valid {
			continue
		}
		if !ok || day.Before(first) {
			first = day
		}
		if !ok || day.After(last) {
			last = day
		}
		ok = true
	}
	return first, last, ok
}

// RecentPrayers returns at most n prayers from an already ordered list.
func RecentPrayers(prayers []*Prayer, n int) []*Prayer {
	if len(prayers) > n {
		return prayers[:n]
	}
	return prayers
}

// CountOpen counts prayers still awaiting an answer.
func CountOpen(prayers []*Prayer) int {
	n := 0
	for _, p := range prayers {
		if p.Status == StatusOpen {
			n++
		}
	}
	return n
}
