package models

import (
	"time"
)

// AwardTerm is the taxonomy entry naming a single award number.
type AwardTerm struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	AwardTermID      *int64     `json:"award_term_id"`
	AwardNumber      string     `json:"award_number"`
	Body             string     `json:"body"`
	Institution      string     `json:"institution"`
	ProjectType      string     `json:"project_type"`
	LeadPI           string     `json:"lead_pi"`
	LeadPIUserID     *int64     `json:"lead_pi_user_id"`
	CoPIs            string     `json:"co_pis"`
	CoPIUserIDs      []int64    `json:"co_pi_user_ids"`
	PIEmail          string     `json:"pi_email"`
	PerformanceStart *time.Time `json:"performance_start"`
	PerformanceEnd   *time.Time `json:"performance_end"`
	Sponsor          string     `json:"sponsor"`
	SponsorURL       string     `json:"sponsor_url"`
	AwardAmount      string     `json:"award_amount"`
	ProjectURL       string     `json:"project_url"`
	ReportURL        string     `json:"report_url"`
	Researchers      string     `json:"researchers"`
	CoreAreas        []string   `json:"core_areas"`
	Keywords         []string   `json:"keywords"`
	Tags             []string   `json:"tags"`
	DisplayVideos    bool       `json:"display_videos"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PerformanceEnded reports whether the performance period ended before now.
// A project without an end date never ends.
func (p *Project) PerformanceEnded(now time.Time) bool {
	if p.PerformanceEnd == nil {
		return false
	}
	return p.PerformanceEnd.Before(now)
}

// HasCoPI reports whether userID is already attached as a co-PI.
func (p *Project) HasCoPI(userID int64) bool {
	for _, id := range p.CoPIUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasUser reports whether userID is attached to the project in any role.
func (p *Project) HasUser(userID int64) bool {
	if p.LeadPIUserID != nil && *p.LeadPIUserID == userID {
		return true
	}
	return p.HasCoPI(userID)
}
