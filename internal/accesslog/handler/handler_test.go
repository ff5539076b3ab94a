package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanctum/internal/accesslog"
	consentmodels "sanctum/internal/consent/models"
	"sanctum/internal/platform/middleware"
	"sanctum/pkg/contenthash"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

type fakeRecorder struct {
	recordFn func(ctx context.Context, entry *accesslog.Entry) (*accesslog.Entry, error)
	listFn   func(ctx context.Context, conversationID id.ConversationID, limit int) ([]*accesslog.Entry, error)
}

func (f *fakeRecorder) Record(ctx context.Context, entry *accesslog.Entry) (*accesslog.Entry, error) {
	return f.recordFn(ctx, entry)
}
func (f *fakeRecorder) List(ctx context.Context, c id.ConversationID, limit int) ([]*accesslog.Entry, error) {
	return f.listFn(ctx, c, limit)
}

type fakeMembership struct {
	member bool
	err    error
}

func (f fakeMembership) IsMember(context.Context, id.ConversationID, id.UserID) (bool, error) {
	return f.member, f.err
}

func newRouter(records Recorder, members Membership) chi.Router {
	h := New(records, members, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, userID id.UserID, deviceID id.DeviceID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := req.Context()
	if !userID.IsNil() {
		ctx = middleware.WithUserID(ctx, userID)
	}
	if deviceID != "" {
		ctx = middleware.WithDeviceID(ctx, deviceID)
	}
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRecord(t *testing.T) {
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())
	path := "/conversations/" + convID.String() + "/access-log"
	digest := contenthash.SumString("bonjour tout le monde")

	t.Run("identity comes from the token, not the body", func(t *testing.T) {
		var got *accesslog.Entry
		records := &fakeRecorder{
			recordFn: func(_ context.Context, entry *accesslog.Entry) (*accesslog.Entry, error) {
				got = entry
				recorded := *entry
				recorded.ID = id.NewAccessEntryID()
				recorded.AccessedAt = time.Now()
				return &recorded, nil
			},
		}
		body := fmt.Sprintf(`{"feature":"translation","content_hash":%q,"ai_model":"translator-v2"}`, digest)
		rec := doRequest(t, newRouter(records, fakeMembership{member: true}), http.MethodPost, path, userID, "device-3", body)
		require.Equal(t, http.StatusCreated, rec.Code)

		require.NotNil(t, got)
		assert.Equal(t, convID, got.ConversationID)
		assert.Equal(t, userID, got.AuthorizingUserID)
		assert.Equal(t, id.DeviceID("device-3"), got.AuthorizingDeviceID)
		assert.Equal(t, consentmodels.FeatureTranslation, got.Feature)
		assert.Equal(t, digest, got.ContentHash)
		assert.Nil(t, got.MessageID)

		var resp EntryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "translator-v2", resp.AIModel)
	})

	t.Run("optional message ID is parsed", func(t *testing.T) {
		messageID := uuid.New()
		var got *accesslog.Entry
		records := &fakeRecorder{
			recordFn: func(_ context.Context, entry *accesslog.Entry) (*accesslog.Entry, error) {
				got = entry
				return entry, nil
			},
		}
		body := fmt.Sprintf(`{"message_id":%q,"feature":"summary","content_hash":%q,"ai_model":"summarizer-v1"}`, messageID, digest)
		rec := doRequest(t, newRouter(records, fakeMembership{member: true}), http.MethodPost, path, userID, "", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, got.MessageID)
		assert.Equal(t, messageID.String(), got.MessageID.String())
	})

	t.Run("bad message ID is 400", func(t *testing.T) {
		body := fmt.Sprintf(`{"message_id":"nope","feature":"summary","content_hash":%q,"ai_model":"summarizer-v1"}`, digest)
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: true}), http.MethodPost, path, userID, "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("plaintext hash is 400", func(t *testing.T) {
		body := `{"feature":"translation","content_hash":"hey want to grab lunch tomorrow?","ai_model":"translator-v2"}`
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: true}), http.MethodPost, path, userID, "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown feature is 400", func(t *testing.T) {
		body := fmt.Sprintf(`{"feature":"mind_reading","content_hash":%q,"ai_model":"x"}`, digest)
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: true}), http.MethodPost, path, userID, "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_feature")
	})

	t.Run("store failure is 503", func(t *testing.T) {
		records := &fakeRecorder{
			recordFn: func(context.Context, *accesslog.Entry) (*accesslog.Entry, error) {
				return nil, dErrors.New(dErrors.CodeStorageFailure, "failed to append access log entry")
			},
		}
		body := fmt.Sprintf(`{"feature":"translation","content_hash":%q,"ai_model":"translator-v2"}`, digest)
		rec := doRequest(t, newRouter(records, fakeMembership{member: true}), http.MethodPost, path, userID, "", body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHandleList(t *testing.T) {
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())
	path := "/conversations/" + convID.String() + "/access-log"
	digest := contenthash.SumString("bonjour tout le monde")

	entry := &accesslog.Entry{
		ID:                id.NewAccessEntryID(),
		ConversationID:    convID,
		AuthorizingUserID: userID,
		Feature:           consentmodels.FeatureTranslation,
		ContentHash:       digest,
		AIModel:           "translator-v2",
		AccessedAt:        time.Now(),
	}

	t.Run("defaults limit", func(t *testing.T) {
		var gotLimit int
		records := &fakeRecorder{
			listFn: func(_ context.Context, _ id.ConversationID, limit int) ([]*accesslog.Entry, error) {
				gotLimit = limit
				return []*accesslog.Entry{entry}, nil
			},
		}
		rec := doRequest(t, newRouter(records, fakeMembership{member: true}), http.MethodGet, path, userID, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, defaultListLimit, gotLimit)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, digest, resp.Entries[0].ContentHash)
	})

	t.Run("explicit limit", func(t *testing.T) {
		var gotLimit int
		records := &fakeRecorder{
			listFn: func(_ context.Context, _ id.ConversationID, limit int) ([]*accesslog.Entry, error) {
				gotLimit = limit
				return nil, nil
			},
		}
		rec := doRequest(t, newRouter(records, fakeMembership{member: true}), http.MethodGet, path+"?limit=5", userID, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, gotLimit)
	})

	t.Run("non-positive limit is 400", func(t *testing.T) {
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: true}), http.MethodGet, path+"?limit=0", userID, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-numeric limit is 400", func(t *testing.T) {
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: true}), http.MethodGet, path+"?limit=lots", userID, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-participant cannot read the trail", func(t *testing.T) {
		rec := doRequest(t, newRouter(&fakeRecorder{}, fakeMembership{member: false}), http.MethodGet, path, userID, "", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_participant")
	})

	t.Run("membership failure is 503", func(t *testing.T) {
		members := fakeMembership{err: dErrors.New(dErrors.CodeStorageFailure, "db down")}
		rec := doRequest(t, newRouter(&fakeRecorder{}, members), http.MethodGet, path, userID, "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
