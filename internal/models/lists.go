package models

import "time"

type InviteeList struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	UserIDs   []int64   `json:"user_ids"`
	CreatedAt time.Time `json:"created_at"`
}

type WebformElement struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

type Webform struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Elements []WebformElement `json:"elements"`
}

type Submission struct {
	ID        int64             `json:"id"`
	WebformID string            `json:"webform_id"`
	UserID    int64             `json:"user_id"`
	Data      map[string]string `json:"data"`
	Completed bool              `json:"completed"`
	CreatedAt time.Time         `json:"created_at"`
}

type RegistrationList struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	InviteeListID int64     `json:"invitee_list_id"`
	WebformIDs    []string  `json:"webform_ids"`
	UserIDs       []int64   `json:"user_ids"`
	CreatedAt     time.Time `json:"created_at"`
}
