package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/recognition"
	"github.com/your-org/attend/pkg/dto"
)

type fakeExtractor struct {
	probes [][]float32
	err    error
}

func (f *fakeExtractor) ExtractAll(imageData []byte) ([][]float32, error) {
	return f.probes, f.err
}

func (f *fakeExtractor) ExtractOne(imageData []byte) ([]float32, error) {
	if len(f.probes) == 0 {
		return nil, f.err
	}
	return f.probes[0], f.err
}

type fakeLister struct {
	identities []models.Identity
}

func (f *fakeLister) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	return f.identities, nil
}

// fakeDayStore is a map-backed attendance.Store for exercising the handler
// without Postgres.
type fakeDayStore struct {
	days map[string]*models.AttendanceDay
}

func newFakeDayStore() *fakeDayStore {
	return &fakeDayStore{days: make(map[string]*models.AttendanceDay)}
}

func (s *fakeDayStore) key(id uuid.UUID, day time.Time) string {
	return id.String() + day.Format("2006-01-02")
}

func (s *fakeDayStore) GetDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error) {
	if rec, ok := s.days[s.key(identityID, day)]; ok {
		return rec, nil
	}
	return nil, nil
}

func (s *fakeDayStore) InsertDay(ctx context.Context, identityID uuid.UUID, day, arrival time.Time) (*models.AttendanceDay, error) {
	if _, ok := s.days[s.key(identityID, day)]; ok {
		return nil, attendance.ErrDuplicateDay
	}
	rec := &models.AttendanceDay{ID: uuid.New(), IdentityID: identityID, Day: day, ArrivalTime: arrival}
	s.days[s.key(identityID, day)] = rec
	return rec, nil
}

func (s *fakeDayStore) SetDeparture(ctx context.Context, identityID uuid.UUID, day, departure time.Time) (*models.AttendanceDay, *time.Time, error) {
	rec := s.days[s.key(identityID, day)]
	prior := rec.DepartureTime
	d := departure
	rec.DepartureTime = &d
	return rec, prior, nil
}

func enrolledIdentity(name string, lead float32) models.Identity {
	emb := make([]float32, recognition.EmbeddingDim)
	emb[0] = lead
	return models.Identity{ID: uuid.New(), Name: name, Email: name + "@example.com", EmployeeID: "E-" + name, Embedding: emb}
}

func newCheckinHandler(extractor FaceExtractor, identities []models.Identity) *CheckinHandler {
	ledger := attendance.NewLedger(newFakeDayStore())
	coordinator := attendance.NewCoordinator(ledger, time.UTC)
	store := recognition.NewEmbeddingStore(&fakeLister{identities: identities})
	return NewCheckinHandler(store, coordinator, nil, nil, extractor, recognition.DefaultThreshold)
}

func checkinRequest(t *testing.T, handler *CheckinHandler) dto.CheckinResponse {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte("not-a-real-jpeg"))
	mw.Close()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/checkin", &body)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())

	handler.Checkin(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp dto.CheckinResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func probeFor(identity models.Identity) [][]float32 {
	p := make([]float32, recognition.EmbeddingDim)
	copy(p, identity.Embedding)
	return [][]float32{p}
}

func TestCheckinNoFaceDetected(t *testing.T) {
	alice := enrolledIdentity("alice", 1)
	handler := newCheckinHandler(&fakeExtractor{probes: nil}, []models.Identity{alice})

	resp := checkinRequest(t, handler)
	if resp.Success {
		t.Error("no-face response must not be a success")
	}
	if resp.Outcome != string(attendance.NoFaceDetected) {
		t.Errorf("outcome = %q; want %q", resp.Outcome, attendance.NoFaceDetected)
	}
}

func TestCheckinNoMatch(t *testing.T) {
	alice := enrolledIdentity("alice", 1)
	stranger := make([]float32, recognition.EmbeddingDim)
	stranger[0] = -1
	handler := newCheckinHandler(&fakeExtractor{probes: [][]float32{stranger}}, []models.Identity{alice})

	resp := checkinRequest(t, handler)
	if resp.Success {
		t.Error("no-match response must not be a success")
	}
	if resp.Outcome != string(attendance.NoMatch) {
		t.Errorf("outcome = %q; want %q", resp.Outcome, attendance.NoMatch)
	}
}

func TestCheckinDaySequence(t *testing.T) {
	alice := enrolledIdentity("alice", 1)
	handler := newCheckinHandler(&fakeExtractor{probes: probeFor(alice)}, []models.Identity{alice})

	first := checkinRequest(t, handler)
	if !first.Success || first.Type != "check_in" {
		t.Fatalf("first event: success=%v type=%q", first.Success, first.Type)
	}
	if first.Identity == nil || *first.Identity != alice.ID {
		t.Errorf("resolved identity = %v; want alice", first.Identity)
	}

	second := checkinRequest(t, handler)
	if second.Type != "check_out" || second.IsUpdate {
		t.Fatalf("second event: type=%q is_update=%v", second.Type, second.IsUpdate)
	}

	third := checkinRequest(t, handler)
	if third.Type != "check_out" || !third.IsUpdate {
		t.Fatalf("third event: type=%q is_update=%v", third.Type, third.IsUpdate)
	}
	if third.PriorTime == "" {
		t.Error("updated check-out must report the overwritten time")
	}
}

func TestCheckinSkipsCorruptIdentities(t *testing.T) {
	alice := enrolledIdentity("alice", 1)
	corrupt := models.Identity{ID: uuid.New(), Name: "broken", Embedding: []float32{1, 2, 3}}
	handler := newCheckinHandler(&fakeExtractor{probes: probeFor(alice)}, []models.Identity{corrupt, alice})

	resp := checkinRequest(t, handler)
	if !resp.Success {
		t.Fatalf("expected match despite corrupt row: %+v", resp)
	}
	if resp.Name != "alice" {
		t.Errorf("matched %q; want alice", resp.Name)
	}
}
