package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func jobHandlers() repository.ModelHandlers[*jobRecord] {
	return repository.ModelHandlers[*jobRecord]{
		NewRecord: func() *jobRecord {
			return &jobRecord{}
		},
		GetID: func(record *jobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *jobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *jobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func shadowHandlers() repository.ModelHandlers[*shadowRecord] {
	return repository.ModelHandlers[*shadowRecord]{
		NewRecord: func() *shadowRecord {
			return &shadowRecord{}
		},
		GetID: func(record *shadowRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *shadowRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *shadowRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func registrationHandlers() repository.ModelHandlers[*registrationRecord] {
	return repository.ModelHandlers[*registrationRecord]{
		NewRecord: func() *registrationRecord {
			return &registrationRecord{}
		},
		GetID: func(record *registrationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *registrationRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *registrationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func deliveryLogHandlers() repository.ModelHandlers[*deliveryLogRecord] {
	return repository.ModelHandlers[*deliveryLogRecord]{
		NewRecord: func() *deliveryLogRecord {
			return &deliveryLogRecord{}
		},
		GetID: func(record *deliveryLogRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *deliveryLogRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *deliveryLogRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
