package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cellule-dashboard/cellule"

	"golang.org/x/term"
)

const defaultWidth = 100

// session is one interactive run: the input scanner, where output goes and
// how wide the terminal is.
type session struct {
	ctx   context.Context
	sc    *bufio.Scanner
	out   io.Writer
	mgr   *cellule.CellManager
	width int
}

func (s *session) printf(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }
func (s *session) println(args ...any)               { fmt.Fprintln(s.out, args...) }

// ask prints label and reads one trimmed line. ok is false once input ends.
func (s *session) ask(label string) (string, bool) {
	s.printf("%s", label)
	if !s.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.sc.Text()), true
}

func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w < 60 {
		return defaultWidth
	}
	return w
}

func runREPL(ctx context.Context, mgr *cellule.CellManager, in io.Reader, out io.Writer) error {
	s := &session{
		ctx:   ctx,
		sc:    bufio.NewScanner(in),
		out:   out,
		mgr:   mgr,
		width: terminalWidth(out),
	}

	s.println("Welcome to the cell dashboard!")
	s.println("Available commands:")
	s.println("  Overview: overview, daily rates")
	s.println("  Members: add member, list members")
	s.println("  Attendance: record attendance, list attendance")
	s.println("  Prayers: add prayer, list prayers, answer prayer, reopen prayer")
	s.println("  Data: export, export csv, reset")
	s.println("  System: exit")

	for {
		s.printf("\n> ")
		if !s.sc.Scan() {
			break
		}
		cmd := strings.ToLower(strings.TrimSpace(s.sc.Text()))

		switch cmd {
		case "":
		case "overview":
			if err := printOverview(ctx, out, mgr); err != nil {
				s.printf("Error: %v\n", err)
			}
		case "daily rates":
			if err := printDailyRates(ctx, out, mgr); err != nil {
				s.printf("Error: %v\n", err)
			}
		case "add member":
			handleAddMember(s)
		case "list members":
			handleListMembers(s)
		case "record attendance":
			handleRecordAttendance(s)
		case "list attendance":
			handleListAttendance(s)
		case "add prayer":
			handleAddPrayer(s)
		case "list prayers":
			handleListPrayers(s)
		case "answer prayer":
			handleSetPrayerStatus(s, cellule.StatusAnswered)
		case "reopen prayer":
			handleSetPrayerStatus(s, cellule.StatusOpen)
		case "export":
			handleExport(s)
		case "export csv":
			handleExportCSV(s)
		case "reset":
			handleReset(s)
		case "exit", "quit":
			s.println("Goodbye!")
			return nil
		default:
			s.println("Unknown command. Type one of the available commands listed above.")
		}
	}
	return s.sc.Err()
}

// ------------------ Overview ------------------

func printOverview(ctx context.Context, out io.Writer, mgr *cellule.CellManager) error {
	ov, err := mgr.Overview(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Members:          %d\n", ov.Members)
	fmt.Fprintf(out, "Open prayers:     %d\n", ov.OpenPrayers)
	fmt.Fprintf(out, "Attendance (%dd): %s\n", cellule.RateWindowDays, ov.AttendanceRate)
	fmt.Fprintf(out, "Last updated:     %s\n", ov.LastUpdated)

	if len(ov.RecentPrayers) == 0 {
		fmt.Fprintln(out, "\nNo prayer requests yet.")
		return nil
	}
	fmt.Fprintln(out, "\nRecent prayer requests:")
	for _, p := range ov.RecentPrayers {
		fmt.Fprintf(out, "  [%s] %s (%s): %s\n", p.Status, p.Created, p.Requester, truncateString(p.Content, 60))
	}
	return nil
}

func printDailyRates(ctx context.Context, out io.Writer, mgr *cellule.CellManager) error {
	rates, err := mgr.DailyAttendanceRate(ctx)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		fmt.Fprintln(out, "No attendance recorded yet.")
		return nil
	}
	fmt.Fprintf(out, "%-12s %6s  %s\n", "Date", "Rate", "")
	for _, r := range rates {
		bar := strings.Repeat("#", int(r.Rate/5))
		fmt.Fprintf(out, "%-12s %5.0f%%  %s\n", r.Date, r.Rate, bar)
	}
	return nil
}

// ------------------ Members ------------------

func handleAddMember(s *session) {
	name, ok := s.ask("Name: ")
	if !ok {
		return
	}
	phone, ok := s.ask("Phone (optional): ")
	if !ok {
		return
	}
	email, ok := s.ask("Email (optional): ")
	if !ok {
		return
	}
	role, ok := s.ask(fmt.Sprintf("Role %v (default %s): ", cellule.Roles, cellule.RoleMember))
	if !ok {
		return
	}

	id, err := s.mgr.AddMember(s.ctx, name, phone, email, cellule.Role(role))
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("Added member '%s' with ID %d\n", name, id)
}

func handleListMembers(s *session) {
	members, err := s.mgr.Members(s.ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(members) == 0 {
		s.println("No members yet.")
		return
	}

	nameWidth := 25
	if s.width > defaultWidth {
		nameWidth += (s.width - defaultWidth) / 2
	}
	s.printf("%-5s %-*s %-15s %-25s %-8s %s\n", "ID", nameWidth, "Name", "Phone", "Email", "Role", "Joined")
	s.println(strings.Repeat("-", min(s.width, nameWidth+75)))
	for _, m := range members {
		s.printf("%-5d %-*s %-15s %-25s %-8s %s\n",
			m.ID, nameWidth, truncateString(m.Name, nameWidth),
			truncateString(orDash(m.Phone), 15), truncateString(orDash(m.Email), 25),
			m.Role, m.Joined)
	}
}

// ------------------ Attendance ------------------

func handleRecordAttendance(s *session) {
	members, err := s.mgr.Members(s.ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(members) == 0 {
		s.println("Add members before recording attendance.")
		return
	}

	idStr, ok := s.ask("Member ID: ")
	if !ok {
		return
	}
	memberID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.printf("Invalid member ID: %s\n", idStr)
		return
	}
	member, err := s.mgr.GetMember(s.ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.printf("Error: Member with ID %d not found\n", memberID)
		} else {
			s.printf("Error: %v\n", err)
		}
		return
	}

	dateStr, ok := s.ask("Date YYYY-MM-DD (default today): ")
	if !ok {
		return
	}
	day := time.Now()
	if dateStr != "" {
		if day, err = time.ParseInLocation(cellule.DateLayout, dateStr, time.Local); err != nil {
			s.printf("Invalid date: %s\n", dateStr)
			return
		}
	}

	presentStr, ok := s.ask("Present? [Y/n]: ")
	if !ok {
		return
	}
	present := !strings.HasPrefix(strings.ToLower(presentStr), "n")

	note, ok := s.ask("Note (optional): ")
	if !ok {
		return
	}

	if _, err := s.mgr.AddAttendance(s.ctx, memberID, day, present, note); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	status := "present"
	if !present {
		status = "absent"
	}
	s.printf("Recorded %s as %s on %s\n", member.Name, status, day.Format(cellule.DateLayout))
}

func handleListAttendance(s *session) {
	records, err := s.mgr.Attendance(s.ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	first, last, ok := cellule.AttendanceBounds(records)
	if !ok {
		s.println("No attendance recorded yet.")
		return
	}

	from, ok := askDate(s, "From", first)
	if !ok {
		return
	}
	to, ok := askDate(s, "To", last)
	if !ok {
		return
	}

	filtered := cellule.FilterAttendance(records, from, to)
	if len(filtered) == 0 {
		s.println("No attendance in that range.")
		return
	}
	s.printf("%-5s %-12s %-25s %-8s %s\n", "ID", "Date", "Member", "Present", "Note")
	s.println(strings.Repeat("-", min(s.width, 80)))
	for _, a := range filtered {
		name := fmt.Sprintf("#%d", a.MemberID)
		if a.MemberName != nil {
			name = *a.MemberName
		}
		present := "no"
		if a.Present {
			present = "yes"
		}
		s.printf("%-5d %-12s %-25s %-8s %s\n", a.ID, a.AttendDate, truncateString(name, 25), present, orDash(a.Note))
	}
}

func askDate(s *session, label string, fallback time.Time) (time.Time, bool) {
	for {
		raw, ok := s.ask(fmt.Sprintf("%s (default %s): ", label, fallback.Format(cellule.DateLayout)))
		if !ok {
			return time.Time{}, false
		}
		if raw == "" {
			return fallback, true
		}
		t, err := time.ParseInLocation(cellule.DateLayout, raw, time.Local)
		if err == nil {
			return t, true
		}
		s.printf("Invalid date: %s\n", raw)
	}
}

// ------------------ Prayers ------------------

func handleAddPrayer(s *session) {
	requester, ok := s.ask(fmt.Sprintf("Requester (default %s): ", cellule.AnonymousRequester))
	if !ok {
		return
	}
	content, ok := s.ask("Request: ")
	if !ok {
		return
	}
	id, err := s.mgr.AddPrayer(s.ctx, requester, content)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("Added prayer request ID %d\n", id)
}

func handleListPrayers(s *session) {
	prayers, err := s.mgr.Prayers(s.ctx)
	if err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	if len(prayers) == 0 {
		s.println("No prayer requests yet.")
		return
	}
	contentWidth := max(20, s.width-50)
	s.printf("%-5s %-12s %-20s %-9s %s\n", "ID", "Created", "Requester", "Status", "Request")
	s.println(strings.Repeat("-", s.width))
	for _, p := range prayers {
		s.printf("%-5d %-12s %-20s %-9s %s\n",
			p.ID, p.Created, truncateString(p.Requester, 20), p.Status, truncateString(p.Content, contentWidth))
	}
}

func handleSetPrayerStatus(s *session, status cellule.PrayerStatus) {
	idStr, ok := s.ask("Prayer ID: ")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.printf("Invalid prayer ID: %s\n", idStr)
		return
	}
	if err := s.mgr.UpdatePrayerStatus(s.ctx, id, status); err != nil {
		s.printf("Error: %v\n", err)
		return
	}
	s.printf("Prayer %d marked %s\n", id, status)
}

// ------------------ Data ------------------

func handleExport(s *session) {
	path, ok := s.ask(fmt.Sprintf("Archive path (default %s): ", cellule.DefaultArchiveName))
	if !ok {
		return
	}
	if path == "" {
		path = cellule.DefaultArchiveName
	}
	if err := s.mgr.ExportAllToFile(s.ctx, path); err != nil {
		s.printf("Export failed: %v\n", err)
		return
	}
	s.printf("Archive written to %s\n", path)
}

func handleExportCSV(s *session) {
	table, ok := s.ask("Table (members, attendance, prayers): ")
	if !ok {
		return
	}
	def := cellule.CSVName(table)
	path, ok := s.ask(fmt.Sprintf("File path (default %s): ", def))
	if !ok {
		return
	}
	if path == "" {
		path = def
	}
	if err := exportTable(s.ctx, s.mgr, table, path); err != nil {
		s.printf("Export failed: %v\n", err)
		return
	}
	s.printf("Table %s written to %s\n", table, path)
}

func handleReset(s *session) {
	s.println("WARNING: this deletes ALL members, attendance and prayer requests.")
	input, ok := s.ask(fmt.Sprintf("Type '%s' to confirm: ", cellule.ResetConfirmation))
	if !ok {
		return
	}
	done, err := s.mgr.ResetDatabase(s.ctx, input)
	if err != nil {
		s.printf("Reset failed: %v\n", err)
		return
	}
	if !done {
		s.println("Reset cancelled.")
		return
	}
	s.println("Database reset.")
}
