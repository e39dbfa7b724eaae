package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
)

// AttemptModel is the persistence model for the integration_attempts table.
// The payload is stored as the partner-facing JSON object.
type AttemptModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	UserID         string               `gorm:"type:uuid;not null"`
	Status         domain.AttemptStatus `gorm:"type:varchar(10);not null"`
	Payload        []byte               `gorm:"type:jsonb;not null"`
	Response       *string              `gorm:"type:text"`
	ErrorMessage   *string              `gorm:"type:text"`
	AttemptCount   int                  `gorm:"not null;default:1"`
	NextEligibleAt *time.Time           `gorm:"type:timestamptz"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (AttemptModel) TableName() string {
	return "integration_attempts"
}

// ConfigModel is the persistence model for integration_configs.
type ConfigModel struct {
	ID              string            `gorm:"type:uuid;primaryKey"`
	Endpoint        string            `gorm:"type:varchar(500);not null"`
	SandboxEndpoint *string           `gorm:"type:varchar(500)"`
	Method          domain.HTTPMethod `gorm:"type:varchar(10);not null"`
	AuthType        domain.AuthType   `gorm:"type:varchar(10);not null"`
	APIKey          *string           `gorm:"type:text"`
	BearerToken     *string           `gorm:"type:text"`
	BasicUsername   *string           `gorm:"type:text"`
	BasicPassword   *string           `gorm:"type:text"`
	IsSandbox       bool              `gorm:"not null;default:true"`
	IsActive        bool              `gorm:"not null;default:true"`
	RetryAttempts   int               `gorm:"not null;default:3"`
	RetryDelayMs    int64             `gorm:"not null;default:5000"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ConfigModel) TableName() string {
	return "integration_configs"
}

func attemptModelFromDomain(a *domain.AttemptRecord) (*AttemptModel, error) {
	if a == nil {
		return nil, nil
	}

	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attempt payload: %w", err)
	}

	return &AttemptModel{
		ID:             a.ID,
		UserID:         a.UserID,
		Status:         a.Status,
		Payload:        payload,
		Response:       a.Response,
		ErrorMessage:   a.ErrorMessage,
		AttemptCount:   a.AttemptCount,
		NextEligibleAt: a.NextEligibleAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func attemptModelToDomain(m *AttemptModel) (*domain.AttemptRecord, error) {
	if m == nil {
		return nil, nil
	}

	var payload domain.RegistrationPayload
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode attempt payload for %s: %w", m.ID, err)
		}
	}

	return &domain.AttemptRecord{
		ID:             m.ID,
		UserID:         m.UserID,
		Status:         m.Status,
		Payload:        payload,
		Response:       m.Response,
		ErrorMessage:   m.ErrorMessage,
		AttemptCount:   m.AttemptCount,
		NextEligibleAt: m.NextEligibleAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func configModelFromDomain(c *domain.IntegrationConfig) *ConfigModel {
	if c == nil {
		return nil
	}

	return &ConfigModel{
		ID:              c.ID,
		Endpoint:        c.Endpoint,
		SandboxEndpoint: optionalString(c.SandboxEndpoint),
		Method:          c.Method,
		AuthType:        c.AuthType,
		APIKey:          optionalString(c.APIKey),
		BearerToken:     optionalString(c.BearerToken),
		BasicUsername:   optionalString(c.BasicUsername),
		BasicPassword:   optionalString(c.BasicPassword),
		IsSandbox:       c.IsSandbox,
		IsActive:        c.IsActive,
		RetryAttempts:   c.RetryAttempts,
		RetryDelayMs:    c.RetryDelay.Milliseconds(),
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func configModelToDomain(m *ConfigModel) *domain.IntegrationConfig {
	if m == nil {
		return nil
	}

	return &domain.IntegrationConfig{
		ID:              m.ID,
		Endpoint:        m.Endpoint,
		SandboxEndpoint: stringValue(m.SandboxEndpoint),
		Method:          m.Method,
		AuthType:        m.AuthType,
		APIKey:          stringValue(m.APIKey),
		BearerToken:     stringValue(m.BearerToken),
		BasicUsername:   stringValue(m.BasicUsername),
		BasicPassword:   stringValue(m.BasicPassword),
		IsSandbox:       m.IsSandbox,
		IsActive:        m.IsActive,
		RetryAttempts:   m.RetryAttempts,
		RetryDelay:      time.Duration(m.RetryDelayMs) * time.Millisecond,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
