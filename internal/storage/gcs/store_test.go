package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

type mockObjects struct {
	mock.Mock
}

func (m *mockObjects) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	args := m.Called(ctx, bucket, object)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockObjects) Write(ctx context.Context, bucket, object string, data []byte) error {
	args := m.Called(ctx, bucket, object, data)
	return args.Error(0)
}

func TestLoadMissingObjectCreatesIt(t *testing.T) {
	t.Parallel()

	objects := &mockObjects{}
	objects.On("Read", mock.Anything, "bkt", "pricewatch.yaml").Return(nil, ErrNotFound)
	objects.On("Write", mock.Anything, "bkt", "pricewatch.yaml", mock.Anything).Return(nil)

	store, err := newStore(objects, Config{Bucket: "bkt"}, nil)
	require.NoError(t, err)
	state, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Zero(t, state.Len())
	objects.AssertExpectations(t)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	var saved []byte
	objects := &mockObjects{}
	objects.On("Write", mock.Anything, "bkt", "state.yaml", mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(3).([]byte) }).
		Return(nil)

	store, err := newStore(objects, Config{Bucket: "bkt", Object: "state.yaml"}, nil)
	require.NoError(t, err)

	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "https://a", Price: 19.99, CheckedAt: time.Unix(1700000000, 5).UTC()})
	require.NoError(t, store.Save(context.Background(), state))

	objects.On("Read", mock.Anything, "bkt", "state.yaml").Return(saved, nil)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, state.Entries(), got.Entries())
}

func TestErrorsArePersistenceKind(t *testing.T) {
	t.Parallel()

	objects := &mockObjects{}
	objects.On("Read", mock.Anything, "bkt", "pricewatch.yaml").Return(nil, errors.New("403"))
	objects.On("Write", mock.Anything, "bkt", "pricewatch.yaml", mock.Anything).Return(errors.New("503"))

	store, err := newStore(objects, Config{Bucket: "bkt"}, nil)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Equal(t, tracker.ReasonStoreUnreadable, tracker.ReasonOf(err))
	err = store.Save(context.Background(), tracker.NewState())
	require.Equal(t, tracker.ReasonStoreUnwritable, tracker.ReasonOf(err))
	require.ErrorContains(t, err, "gs://bkt/pricewatch.yaml")
}

func TestClientObjectsWriteUploads(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if r.URL.Query().Get("name") != "state.yaml" || len(body) == 0 {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, `{"name": "state.yaml", "bucket": "bkt"}`)
	}))
	defer server.Close()

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()

	err = clientObjects{client: client}.Write(context.Background(), "bkt", "state.yaml", []byte("products: {}\n"))
	require.NoError(t, err)
}

func TestNewStoreRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := newStore(&mockObjects{}, Config{}, nil)
	require.Error(t, err)
}
