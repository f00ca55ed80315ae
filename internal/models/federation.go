package models

import (
	"time"

	"github.com/google/uuid"
)

// FederationLink maps an external provider identity to a local account.
// Created on the first federated login for a given external subject.
type FederationLink struct {
	Provider   string
	ExternalID string
	UserID     uuid.UUID
	CreatedAt  time.Time
}
