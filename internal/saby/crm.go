package saby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sabyx/saby-crm-relay/internal/record"
)

// Theme is a CRM lead theme, the routing target for new deals.
type Theme struct {
	ID         int64  `json:"theme_id"`
	Name       string `json:"theme_name"`
	Error      string `json:"error,omitempty"`
	Regulation int64  `json:"regulation"`
}

// ContactPerson is the person attached to a lead.
type ContactPerson struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ClientInfo identifies a CRM counterparty, by existing face ID or by tax
// identifiers.
type ClientInfo struct {
	FaceID string `json:"face_id,omitempty"`
	INN    string `json:"inn,omitempty"`
	KPP    string `json:"kpp,omitempty"`
	Name   string `json:"name"`
}

// LeadRequest carries the fields for creating a lead (deal).
type LeadRequest struct {
	Regulation  int64          `json:"regulation"`
	Responsible string         `json:"responsible,omitempty"`
	Client      *ClientInfo    `json:"client,omitempty"`
	Contact     *ContactPerson `json:"contact_person,omitempty"`
	Note        string         `json:"note,omitempty"`
}

// Lead is the CRM's view of a created deal.
type Lead struct {
	DocumentID   int64  `json:"document_id"`
	DocumentUUID string `json:"uuid"`
	Regulation   int64  `json:"regulation"`
	State        string `json:"state,omitempty"`
	Note         string `json:"note,omitempty"`
}

// GetThemeByName resolves a CRM theme (and its regulation ID) by name.
func (c *Client) GetThemeByName(ctx context.Context, name string) (*Theme, error) {
	result, err := c.Call(ctx, methodGetTheme, map[string]any{"НаименованиеТемы": name})
	if err != nil {
		return nil, err
	}

	obj, err := c.decodeRecordResult(methodGetTheme, result)
	if err != nil {
		return nil, err
	}
	return &Theme{
		ID:         objInt64(obj, "Идентификатор"),
		Name:       objString(obj, "Название"),
		Error:      objString(obj, "Ошибка"),
		Regulation: objInt64(obj, "Регламент"),
	}, nil
}

// CreateLead creates a deal in the CRM from the lead request.
func (c *Client) CreateLead(ctx context.Context, lead *LeadRequest) (*Lead, error) {
	obj := record.NewObject().Set("Регламент", lead.Regulation)
	if lead.Responsible != "" {
		obj.Set("Ответственный", lead.Responsible)
	}
	if lead.Contact != nil {
		contact := record.NewObject().Set("ФИО", lead.Contact.Name)
		if lead.Contact.Phone != "" {
			contact.Set("Телефон", lead.Contact.Phone)
		}
		if lead.Contact.Email != "" {
			contact.Set("email", lead.Contact.Email)
		}
		obj.Set("КонтактноеЛицо", contact)
	}
	if lead.Client != nil {
		client := record.NewObject()
		if lead.Client.FaceID != "" {
			client.Set("@Лицо", lead.Client.FaceID)
		}
		if lead.Client.INN != "" {
			client.Set("ИНН", lead.Client.INN)
		}
		if lead.Client.KPP != "" {
			client.Set("КПП", lead.Client.KPP)
		}
		client.Set("Наименование", lead.Client.Name)
		obj.Set("Клиент", client)
	}
	if lead.Note != "" {
		obj.Set("Примечание", lead.Note)
	}

	rec, err := record.Encode(obj)
	if err != nil {
		return nil, err
	}

	result, err := c.Call(ctx, methodInsertLead, map[string]any{"Лид": rec})
	if err != nil {
		return nil, err
	}

	resp, err := c.decodeRecordResult(methodInsertLead, result)
	if err != nil {
		return nil, err
	}
	created := &Lead{
		DocumentID:   objInt64(resp, "@Документ"),
		DocumentUUID: objString(resp, "ИдентификаторДокумента"),
		Regulation:   objInt64(resp, "Регламент"),
		State:        objString(resp, "Состояние"),
		Note:         objString(resp, "Примечание"),
	}
	if created.Regulation == 0 {
		created.Regulation = lead.Regulation
	}
	return created, nil
}

// GetLeadStatus returns the CRM's current state record for a deal.
func (c *Client) GetLeadStatus(ctx context.Context, documentID int64) (*record.Object, error) {
	result, err := c.Call(ctx, methodLeadStatus, map[string]any{"ИдентификаторДокумента": documentID})
	if err != nil {
		return nil, err
	}
	return c.decodeRecordResult(methodLeadStatus, result)
}

// FindClientByTaxID looks up a counterparty by INN/KPP. The result is the
// CRM-side client identifier.
func (c *Client) FindClientByTaxID(ctx context.Context, info *ClientInfo) (string, error) {
	formID := 0
	rec, err := record.EncodeWithSchema(
		record.NewObject().
			Set("ИНН", info.INN).
			Set("КПП", info.KPP).
			Set("Название", info.Name),
		record.Schema{
			{Name: "ИНН", Type: record.TypeString},
			{Name: "КПП", Type: record.TypeString},
			{Name: "Название", Type: record.TypeString},
		},
	)
	if err != nil {
		return "", err
	}
	rec.FormID = &formID

	result, err := c.Call(ctx, methodFindClient, map[string]any{"params": rec})
	if err != nil {
		return "", err
	}
	return scalarResult(result)
}

// FindOrCreateClient resolves a counterparty by tax identifiers, falling back
// to creating one when the lookup fails with a CRM-side error.
func (c *Client) FindOrCreateClient(ctx context.Context, info *ClientInfo) (string, error) {
	if info.INN != "" && info.KPP != "" {
		id, err := c.FindClientByTaxID(ctx, info)
		if err == nil {
			return id, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return "", err
		}
		c.logger.Info("client not found, creating", "inn", info.INN, "crm_error", apiErr.Message)
	}

	rec, err := record.Encode(record.NewObject().
		Set("ИНН", info.INN).
		Set("КПП", info.KPP).
		Set("Название", info.Name))
	if err != nil {
		return "", err
	}

	result, err := c.Call(ctx, methodFindClient, map[string]any{"params": rec})
	if err != nil {
		return "", err
	}
	return scalarResult(result)
}

// decodeRecordResult parses a JSON-RPC result expected to be a wire record.
func (c *Client) decodeRecordResult(method string, result json.RawMessage) (*record.Object, error) {
	parsed, err := record.Unmarshal(result)
	if err != nil {
		return nil, fmt.Errorf("saby: %s returned an unexpected result shape: %w", method, err)
	}
	rec, ok := parsed.(*record.Record)
	if !ok {
		return nil, fmt.Errorf("saby: %s returned a recordset, expected a record", method)
	}
	return c.decoder.DecodeRecord(rec)
}

// scalarResult stringifies a scalar JSON-RPC result (the CRM returns bare
// client identifiers from counterparty lookups).
func scalarResult(result json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(result, &v); err != nil {
		return "", fmt.Errorf("saby: failed to decode scalar result: %w", err)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s)), nil
		}
		return fmt.Sprint(s), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// objString reads a string field from a decoded record, tolerating absent or
// null cells.
func objString(obj *record.Object, name string) string {
	v, ok := obj.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// objInt64 reads an integer field from a decoded record.
func objInt64(obj *record.Object, name string) int64 {
	v, ok := obj.Get(name)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
