package server

import (
	"dutyline/internal/domain"
	"dutyline/internal/repo"
)

// Request payloads

type CreateDutyRequest struct {
	ClientID           string  `json:"clientId"`
	Title              string  `json:"title"`
	Description        *string `json:"description,omitempty"`
	DueDate            *string `json:"dueDate,omitempty" format:"date-time"`
	Frequency          *string `json:"frequency,omitempty"`
	RequiresAttachment bool    `json:"requiresAttachment,omitempty"`
	NotesRequired      bool    `json:"notesRequired,omitempty"`
	AssignedTo         *string `json:"assignedTo,omitempty"`
}

type UpdateDutyRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Frequency   *string `json:"frequency,omitempty"`
	Status      *string `json:"status,omitempty" enum:"PENDING,IN_PROGRESS,COMPLETED"`
}

// Response payloads

type DutyResponse domain.Duty

type DutyRowResponse struct {
	domain.Duty
	ClientName     string  `json:"clientName"`
	AssignedToName *string `json:"assignedToName,omitempty"`
}

type ClientResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	ActiveDutyCount int    `json:"activeDutyCount"`
	TotalDutyCount  int    `json:"totalDutyCount"`
	CreatedAt       string `json:"createdAt" format:"date-time"`
	UpdatedAt       string `json:"updatedAt" format:"date-time"`
}

type UserResponse domain.User

// Conversion helpers

func dutyResponse(d domain.Duty) DutyResponse {
	return DutyResponse(d)
}

func dutyRowResponse(row repo.DutyRow) DutyRowResponse {
	return DutyRowResponse{
		Duty:           row.Duty,
		ClientName:     row.ClientName,
		AssignedToName: row.AssignedToName,
	}
}

func clientResponse(row repo.ClientRow) ClientResponse {
	return ClientResponse{
		ID:              row.ID,
		Name:            row.Name,
		Description:     row.Description,
		ActiveDutyCount: row.ActiveDutyCount,
		TotalDutyCount:  row.TotalDutyCount,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
