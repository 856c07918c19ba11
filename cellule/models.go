package cellule

// Role is the closed set of positions a member can hold in the cell.
type Role string

const (
	RoleMember  Role = "Member"
	RoleLeader  Role = "Leader"
	RoleServant Role = "Servant"
	RoleYouth   Role = "Youth"
	RoleVisitor Role = "Visitor"
)

// Roles lists every accepted role in display order.
var Roles = []Role{RoleMember, RoleLeader, RoleServant, RoleYouth, RoleVisitor}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// PrayerStatus is the only mutable field in the whole data model.
type PrayerStatus string

const (
	StatusOpen     PrayerStatus = "open"
	StatusAnswered PrayerStatus = "answered"
)

func (s PrayerStatus) Valid() bool { return s == StatusOpen || s == StatusAnswered }

// Member represents a registered cell member. Joined is set once at creation.
type Member struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Joined string `json:"joined"`
}

// Attendance is one row of the attendance view: the stored record joined with
// the member's display name. MemberName is nil when MemberID no longer resolves.
type Attendance struct {
	ID         int64   `json:"id"`
	MemberID   int64   `json:"member_id"`
	MemberName *string `json:"member_name"`
	AttendDate string  `json:"attend_date"`
	Present    bool    `json:"present"`
	Note       string  `json:"note"`
}

// Prayer represents a prayer request.
type Prayer struct {
	ID        int64        `json:"id"`
	Requester string       `json:"requester"`
	Content   string       `json:"content"`
	Created   string       `json:"created"`
	Status    PrayerStatus `json:"status"`
}

// DailyRate is the attendance percentage for a single meeting date.
type DailyRate struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// Overview gathers the figures shown on the dashboard landing section.
type Overview struct {
	Members        int       `json:"members"`
	OpenPrayers    int       `json:"open_prayers"`
	AttendanceRate Rate      `json:"attendance_rate"`
	LastUpdated    string    `json:"last_updated"`
	RecentPrayers  []*Prayer `json:"recent_prayers"`
}
