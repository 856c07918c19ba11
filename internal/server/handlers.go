package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cellule-dashboard/cellule"

	"github.com/gin-gonic/gin"
)

// ------------------ Overview ------------------

func (s *Server) getOverview(c *gin.Context) {
	ov, err := s.mgr.Overview(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"members":              ov.Members,
		"open_prayers":         ov.OpenPrayers,
		"attendance_rate":      ov.AttendanceRate,
		"attendance_rate_text": ov.AttendanceRate.String(),
		"last_updated":         ov.LastUpdated,
		"recent_prayers":       ov.RecentPrayers,
	})
}

// ------------------ Members ------------------

type memberRequest struct {
	Name  string       `json:"name"`
	Phone string       `json:"phone"`
	Email string       `json:"email"`
	Role  cellule.Role `json:"role"`
}

func (s *Server) getMembers(c *gin.Context) {
	members, err := s.mgr.Members(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (s *Server) createMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	id, err := s.mgr.AddMember(c, req.Name, req.Phone, req.Email, req.Role)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// ------------------ Attendance ------------------

type attendanceRequest struct {
	MemberID int64  `json:"member_id" binding:"required"`
	Date     string `json:"date"`
	Present  *bool  `json:"present"`
	Note     string `json:"note"`
}

func (s *Server) getAttendance(c *gin.Context) {
	records, err := s.mgr.Attendance(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	from, to, ok := cellule.AttendanceBounds(records)
	if !ok {
		c.JSON(http.StatusOK, []*cellule.Attendance{})
		return
	}
	if from, err = dateParam(c, "from", from); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if to, err = dateParam(c, "to", to); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cellule.FilterAttendance(records, from, to))
}

func dateParam(c *gin.Context, name string, fallback time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(cellule.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", name, raw)
	}
	return t, nil
}

func (s *Server) createAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// Attendance is only taken for members picked from the list.
	if _, err := s.mgr.GetMember(c, req.MemberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("member %d does not exist", req.MemberID)})
			return
		}
		s.respondError(c, err)
		return
	}

	day := time.Now()
	if req.Date != "" {
		parsed, err := time.ParseInLocation(cellule.DateLayout, req.Date, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid date %q, want YYYY-MM-DD", req.Date)})
			return
		}
		day = parsed
	}
	present := true
	if req.Present != nil {
		present = *req.Present
	}

	id, err := s.mgr.AddAttendance(c, req.MemberID, day, present, req.Note)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) getDailyRates(c *gin.Context) {
	rates, err := s.mgr.DailyAttendanceRate(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

// ------------------ Prayers ------------------

type prayerRequest struct {
	Requester string `json:"requester"`
	Content   string `json:"content"`
}

type statusRequest struct {
	Status cellule.PrayerStatus `json:"status" binding:"required"`
}

func (s *Server) getPrayers(c *gin.Context) {
	prayers, err := s.mgr.Prayers(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prayers)
}

func (s *Server) createPrayer(c *gin.Context) {
	var req prayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	id, err := s.mgr.AddPrayer(c, req.Requester, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updatePrayerStatus(c *gin.Context) {
	prayerID, err := strconv.ParseInt(c.Param("prayer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prayer ID", "details": err.Error()})
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := s.mgr.UpdatePrayerStatus(c, prayerID, req.Status); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": prayerID, "status": req.Status})
}

// ------------------ Export / maintenance ------------------

func (s *Server) exportTable(c *gin.Context) {
	name := c.Param("table")
	table, err := s.mgr.Table(c, name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	data, err := cellule.CSVBytes(table)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, cellule.CSVName(name)))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (s *Server) exportArchive(c *gin.Context) {
	data, err := s.mgr.ExportAll(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, cellule.DefaultArchiveName))
	c.Data(http.StatusOK, "application/zip", data)
}

type resetRequest struct {
	Confirmation string `json:"confirmation"`
}

func (s *Server) reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	done, err := s.mgr.ResetDatabase(c, req.Confirmation)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !done {
		c.JSON(http.StatusOK, gin.H{"reset": false, "message": fmt.Sprintf("type %q to confirm", cellule.ResetConfirmation)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}
