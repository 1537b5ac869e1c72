package mocksaby

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sabyx/saby-crm-relay/internal/record"
)

// rpcEnvelope is the inbound JSON-RPC call envelope.
type rpcEnvelope struct {
	JSONRPC  string          `json:"jsonrpc"`
	Method   string          `json:"method"`
	Params   json.RawMessage `json:"params"`
	Protocol int             `json:"protocol"`
	ID       int64           `json:"id"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleAuth serves the service-authorization endpoint. The same URL also
// receives logout events, distinguished by the "event" field in the body.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if event, _ := body["event"].(string); event == "exit" {
		s.handleLogout(w, body)
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.authCalls++

	if status := s.state.failures.AuthStatus; status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error":"authorization rejected (status %d)"}`, status)
		return
	}

	for _, field := range []string{"app_client_id", "app_secret", "secret_key"} {
		if v, _ := body[field].(string); v == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"error":"missing %s"}`, field)
			return
		}
	}

	token, sid := s.mintToken()
	writeJSON(w, http.StatusOK, map[string]string{"sid": sid, "token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, body map[string]any) {
	token, _ := body["token"].(string)

	s.state.mu.Lock()
	if _, known := s.state.tokens[token]; known {
		s.state.tokens[token] = false
	}
	s.state.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleService serves the JSON-RPC CRM endpoint.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-SBISAccessToken")

	s.state.mu.RLock()
	valid := s.state.tokens[token]
	reject := s.state.failures.RejectTokens
	rpcCode := s.state.failures.RPCErrorCode
	rpcMessage := s.state.failures.RPCErrorMessage
	s.state.mu.RUnlock()

	if reject || !valid {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"access token rejected"}`)
		return
	}

	var call rpcEnvelope
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, "invalid JSON-RPC body", http.StatusBadRequest)
		return
	}

	if rpcCode != 0 {
		writeRPCError(w, call.ID, rpcCode, rpcMessage)
		return
	}

	switch call.Method {
	case "CRMLead.getCRMThemeByName":
		s.handleGetTheme(w, call)
	case "CRMLead.insertRecord":
		s.handleInsertLead(w, call)
	case "CRMLead.getStatus":
		s.handleLeadStatus(w, call)
	case "Контрагент.ПоИННКППКФ":
		s.handleFindClient(w, call)
	default:
		writeRPCError(w, call.ID, -32601, "Метод не найден: "+call.Method)
	}
}

func (s *Server) handleGetTheme(w http.ResponseWriter, call rpcEnvelope) {
	var params struct {
		Name string `json:"НаименованиеТемы"`
	}
	if err := json.Unmarshal(call.Params, &params); err != nil {
		writeRPCError(w, call.ID, -32602, "некорректные параметры")
		return
	}

	s.state.mu.RLock()
	theme, ok := s.state.themes[params.Name]
	s.state.mu.RUnlock()

	var obj *record.Object
	if ok {
		obj = record.NewObject().
			Set("Идентификатор", theme.ID).
			Set("Название", theme.Name).
			Set("Регламент", theme.Regulation)
	} else {
		obj = record.NewObject().
			Set("Ошибка", "Тема не найдена: "+params.Name)
	}

	rec, err := record.Encode(obj)
	if err != nil {
		writeRPCError(w, call.ID, -32603, err.Error())
		return
	}
	writeRPCResult(w, call.ID, rec)
}

func (s *Server) handleInsertLead(w http.ResponseWriter, call rpcEnvelope) {
	var params struct {
		Lead json.RawMessage `json:"Лид"`
	}
	if err := json.Unmarshal(call.Params, &params); err != nil || len(params.Lead) == 0 {
		writeRPCError(w, call.ID, -32602, "некорректные параметры: нет записи Лид")
		return
	}

	parsed, err := record.Unmarshal(params.Lead)
	if err != nil {
		writeRPCError(w, call.ID, -32602, "некорректная запись Лид: "+err.Error())
		return
	}
	rec, ok := parsed.(*record.Record)
	if !ok {
		writeRPCError(w, call.ID, -32602, "ожидалась запись, получена выборка")
		return
	}

	var dec record.Decoder
	obj, err := dec.DecodeRecord(rec)
	if err != nil {
		writeRPCError(w, call.ID, -32602, "некорректная запись Лид: "+err.Error())
		return
	}

	regulation := objInt64(obj, "Регламент")
	if regulation == 0 {
		writeRPCError(w, call.ID, -32602, "Регламент обязателен")
		return
	}

	s.state.mu.Lock()
	s.state.nextDocID++
	lead := &Lead{
		DocumentID: s.state.nextDocID,
		UUID:       uuid.New().String(),
		Regulation: regulation,
		State:      "Новый",
		Note:       objString(obj, "Примечание"),
	}
	s.state.leads[lead.DocumentID] = lead
	s.state.mu.Unlock()

	result, err := record.Encode(record.NewObject().
		Set("@Документ", lead.DocumentID).
		Set("ИдентификаторДокумента", lead.UUID).
		Set("Регламент", lead.Regulation).
		Set("Состояние", lead.State).
		Set("Примечание", lead.Note))
	if err != nil {
		writeRPCError(w, call.ID, -32603, err.Error())
		return
	}
	writeRPCResult(w, call.ID, result)
}

func (s *Server) handleLeadStatus(w http.ResponseWriter, call rpcEnvelope) {
	var params struct {
		DocumentID int64 `json:"ИдентификаторДокумента"`
	}
	if err := json.Unmarshal(call.Params, &params); err != nil {
		writeRPCError(w, call.ID, -32602, "некорректные параметры")
		return
	}

	s.state.mu.RLock()
	lead, ok := s.state.leads[params.DocumentID]
	s.state.mu.RUnlock()

	if !ok {
		writeRPCError(w, call.ID, -32602, fmt.Sprintf("Документ %d не найден", params.DocumentID))
		return
	}

	result, err := record.Encode(record.NewObject().
		Set("@Документ", lead.DocumentID).
		Set("Состояние", lead.State).
		Set("Примечание", lead.Note))
	if err != nil {
		writeRPCError(w, call.ID, -32603, err.Error())
		return
	}
	writeRPCResult(w, call.ID, result)
}

// handleFindClient serves counterparty lookup and creation. Lookups carry a
// form ID on the wire record, creations do not.
func (s *Server) handleFindClient(w http.ResponseWriter, call rpcEnvelope) {
	var params struct {
		Record json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(call.Params, &params); err != nil || len(params.Record) == 0 {
		writeRPCError(w, call.ID, -32602, "некорректные параметры")
		return
	}

	parsed, err := record.Unmarshal(params.Record)
	if err != nil {
		writeRPCError(w, call.ID, -32602, "некорректная запись: "+err.Error())
		return
	}
	rec, ok := parsed.(*record.Record)
	if !ok {
		writeRPCError(w, call.ID, -32602, "ожидалась запись, получена выборка")
		return
	}

	var dec record.Decoder
	obj, err := dec.DecodeRecord(rec)
	if err != nil {
		writeRPCError(w, call.ID, -32602, "некорректная запись: "+err.Error())
		return
	}

	inn := objString(obj, "ИНН")
	kpp := objString(obj, "КПП")
	key := clientKey(inn, kpp)

	if rec.FormID != nil {
		// Lookup
		s.state.mu.RLock()
		faceID, found := s.state.clients[key]
		s.state.mu.RUnlock()

		if !found {
			writeRPCError(w, call.ID, -32602, "Клиент не найден")
			return
		}
		writeRPCResult(w, call.ID, faceID)
		return
	}

	// Creation: register and return a fresh face ID
	s.state.mu.Lock()
	faceID, exists := s.state.clients[key]
	if !exists {
		faceID = "face-" + uuid.New().String()
		s.state.clients[key] = faceID
	}
	s.state.mu.Unlock()

	writeRPCResult(w, call.ID, faceID)
}

func writeRPCResult(w http.ResponseWriter, id int64, result any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": "2.0",
		"result":  result,
		"id":      id,
	})
}

func writeRPCError(w http.ResponseWriter, id int64, code int, message string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": "2.0",
		"error":   rpcErrorBody{Code: code, Message: message},
		"id":      id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	_ = json.NewEncoder(w).Encode(v)
}

// objString reads a string cell, tolerating absent or null values.
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

// objInt64 reads an integer cell.
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
