package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medrecord-api/config"
	"github.com/jwalitptl/medrecord-api/internal/email"
	"github.com/jwalitptl/medrecord-api/internal/repository/memory"
	"github.com/jwalitptl/medrecord-api/pkg/security"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	t       *testing.T
	handler http.Handler
	app     *App
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test", RequestTimeout: 5 * time.Second},
		JWT: config.JWTConfig{
			Secret:      "0123456789abcdef0123456789abcdef",
			Issuer:      "medrecord-test",
			ExpiryHours: 1,
		},
		Encryption: config.EncryptionConfig{
			KeyHex: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		},
		Revocation: config.RevocationConfig{
			CacheEnabled:  true,
			CacheCapacity: 100,
			NegativeTTL:   time.Minute,
		},
		Access:    config.AccessConfig{MatchHospital: true},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Hospitals: []config.HospitalConfig{
			{Name: "H1", EmailDomain: "h1.example"},
			{Name: "H2", EmailDomain: "h2.example"},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a, err := New(testConfig(), MemoryRepositories(memory.NewStore()), Options{
		Hasher: security.NewBcryptHasher(4),
		Mailer: email.NewLogService(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Auditor.Wait)
	return &harness{t: t, handler: a.Router.Engine(), app: a}
}

func (h *harness) do(method, path, token string, body interface{}) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (h *harness) decode(env envelope, out interface{}) {
	h.t.Helper()
	require.NoError(h.t, json.Unmarshal(env.Data, out))
}

func (h *harness) staff(email, role, hospital, department string) (token, id string) {
	h.t.Helper()
	code, env := h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "password123", "name": email,
		"role": role, "hospital": hospital, "department": department,
	})
	require.Equal(h.t, http.StatusCreated, code, env.Error)
	return h.login(email, "password123")
}

func (h *harness) login(email, password string) (token, id string) {
	h.t.Helper()
	code, env := h.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(h.t, http.StatusOK, code, env.Error)
	var tokens struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	h.decode(env, &tokens)
	return tokens.AccessToken, tokens.User.ID
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/metrics", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "medrec_http_requests_total")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", env.Error.Kind)

	code, _ = h.do(http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegisterRejectsForeignDomainAndBadInput(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "d@h2.example", "password": "password123", "name": "D",
		"role": "doctor", "hospital": "H1", "department": "cardio",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := h.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "d@h1.example", "password": "password123", "name": "D",
		"role": "doctor", "hospital": "H1", "department": "dentistry",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error.Message, "department")
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newHarness(t)
	token, _ := h.staff("d1@h1.example", "doctor", "H1", "cardio")

	code, _ := h.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCareTeamScenario(t *testing.T) {
	h := newHarness(t)

	nurseN, nurseNID := h.staff("n@h1.example", "nurse", "H1", "cardio")
	_, nurseMID := h.staff("m@h1.example", "nurse", "H1", "cardio")
	nurseM, _ := h.login("m@h1.example", "password123")
	doctor, _ := h.staff("d1@h1.example", "doctor", "H1", "cardio")
	ortho, _ := h.staff("d2@h1.example", "doctor", "H1", "ortho")

	code, env := h.do(http.MethodPost, "/api/v1/patients", nurseN, map[string]string{
		"name": "Pat", "email": "pat@mail.example", "dob": "1980-04-02", "gender": "female", "contact": "555-0100",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created struct {
		Patient struct {
			ID          string `json:"id"`
			PatientCode string `json:"patient_code"`
			Hospital    string `json:"hospital"`
			Department  string `json:"department"`
		} `json:"patient"`
		Credentials struct {
			Password string `json:"password"`
		} `json:"credentials"`
	}
	h.decode(env, &created)
	assert.Equal(t, "H1", created.Patient.Hospital)
	assert.Equal(t, "cardio", created.Patient.Department)
	assert.Equal(t, "H1-CARDIO-000001", created.Patient.PatientCode)
	patientID := created.Patient.ID

	code, env = h.do(http.MethodPost, "/api/v1/assignments", doctor, map[string]string{"patient_id": patientID, "nurse_id": nurseNID})
	require.Equal(t, http.StatusCreated, code, env.Error)

	payload := map[string]interface{}{
		"type": "diagnosis", "summary": "stable", "diagnosis": "arrhythmia",
		"medications": []string{"bisoprolol"}, "notes": "private",
	}
	code, env = h.do(http.MethodPost, "/api/v1/records", doctor, map[string]interface{}{
		"patient_id": patientID, "record_type": "diagnosis", "data": payload,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	type recordBody struct {
		ID   string                 `json:"id"`
		Data map[string]interface{} `json:"data"`
	}
	var stored recordBody
	h.decode(env, &stored)
	require.NotEmpty(t, stored.ID)
	assert.Empty(t, stored.Data, "create returns metadata only")

	recordPath := "/api/v1/records/" + stored.ID
	listPath := "/api/v1/records/patient/" + patientID

	code, env = h.do(http.MethodGet, recordPath, doctor, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var full recordBody
	h.decode(env, &full)
	assert.Equal(t, "arrhythmia", full.Data["diagnosis"])
	assert.Equal(t, "private", full.Data["notes"])

	code, env = h.do(http.MethodGet, recordPath, nurseN, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var redacted recordBody
	h.decode(env, &redacted)
	assert.NotContains(t, redacted.Data, "diagnosis")
	assert.NotContains(t, redacted.Data, "notes")
	assert.Equal(t, "stable", redacted.Data["summary"])

	patientToken, _ := h.login("pat@mail.example", created.Credentials.Password)
	code, env = h.do(http.MethodGet, listPath, patientToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var list []struct {
		Data        map[string]interface{} `json:"data"`
		EditHistory []interface{}          `json:"edit_history"`
	}
	h.decode(env, &list)
	require.Len(t, list, 1)
	assert.ElementsMatch(t, []string{"type", "summary", "medications"}, keys(list[0].Data))
	assert.Empty(t, list[0].EditHistory)

	code, env = h.do(http.MethodGet, "/api/v1/assignments/patient/"+patientID, patientToken, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = h.do(http.MethodGet, listPath, ortho, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error.Kind)

	code, _ = h.do(http.MethodGet, listPath, nurseM, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = h.do(http.MethodPost, "/api/v1/assignments", doctor, map[string]string{"patient_id": patientID, "nurse_id": nurseMID})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, _ = h.do(http.MethodGet, listPath, nurseN, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = h.do(http.MethodGet, listPath, nurseM, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = h.do(http.MethodGet, "/api/v1/assignments/department", doctor, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var dept []map[string]interface{}
	h.decode(env, &dept)
	assert.Len(t, dept, 1)
}

func TestNurseRecordUpdateOverHTTP(t *testing.T) {
	h := newHarness(t)
	nurse, nurseID := h.staff("n@h1.example", "nurse", "H1", "cardio")
	doctor, _ := h.staff("d@h1.example", "doctor", "H1", "cardio")

	_, env := h.do(http.MethodPost, "/api/v1/patients", nurse, map[string]string{
		"name": "Pat", "email": "pat@mail.example", "dob": "1980-04-02", "gender": "male", "contact": "555",
	})
	var created struct {
		Patient struct {
			ID string `json:"id"`
		} `json:"patient"`
	}
	h.decode(env, &created)
	code, _ := h.do(http.MethodPost, "/api/v1/assignments", doctor, map[string]string{"patient_id": created.Patient.ID, "nurse_id": nurseID})
	require.Equal(t, http.StatusCreated, code)

	code, env = h.do(http.MethodPost, "/api/v1/records", nurse, map[string]interface{}{
		"patient_id": created.Patient.ID, "record_type": "vitals", "data": map[string]interface{}{"vitals": map[string]int{"hr": 70}},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var rec struct {
		ID          string                 `json:"id"`
		Data        map[string]interface{} `json:"data"`
		EditHistory []struct {
			Fields []string `json:"fields"`
		} `json:"edit_history"`
	}
	h.decode(env, &rec)

	code, env = h.do(http.MethodPut, "/api/v1/records/"+rec.ID, nurse, map[string]interface{}{
		"data": map[string]interface{}{"vitals": map[string]int{"hr": 80}, "diagnosis": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = h.do(http.MethodPut, "/api/v1/records/"+rec.ID, nurse, map[string]interface{}{
		"data": map[string]interface{}{"vitals": map[string]int{"hr": 80}},
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	h.decode(env, &rec)
	assert.Equal(t, map[string]interface{}{"hr": float64(80)}, rec.Data["vitals"])
	require.Len(t, rec.EditHistory, 1)

	code, _ = h.do(http.MethodPut, "/api/v1/records/not-a-uuid", nurse, map[string]interface{}{"data": map[string]interface{}{"vitals": 1}})
	assert.Equal(t, http.StatusBadRequest, code)
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
