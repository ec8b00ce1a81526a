package mockorg

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"qcpsync/internal/config"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/sfdc"
)

// Тесты гоняют настоящий клиент против заглушки - заодно проверяется
// совместимость форматов с обеих сторон

func testServer(t *testing.T) (*httptest.Server, *Storage) {
	t.Helper()

	storage, err := NewStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	server := httptest.NewServer(NewServer(storage, log).Handler())
	t.Cleanup(server.Close)
	return server, storage
}

func testConn(t *testing.T, serverURL string) *sfdc.Connection {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	conn, err := sfdc.NewConnection(&sfdc.OrgInfo{
		OrgType:  script.OrgTypeCustomURL,
		LoginURL: serverURL,
		AuthInfo: &sfdc.AuthInfo{
			AccessToken:  "mock-access-token",
			RefreshToken: "mock-refresh-token",
			InstanceURL:  serverURL,
			ID:           serverURL + "/id/" + mockOrgID + "/" + mockUserID,
		},
	}, &config.Config{HTTPTimeout: 5}, log)
	require.NoError(t, err)
	return conn
}

func TestInsertQueryUpdateDelete(t *testing.T) {
	server, _ := testServer(t)
	conn := testConn(t, server.URL)
	ctx := context.Background()

	result, err := conn.InsertRecord(ctx, script.Upsert{Name: "Foo", Code: "foo code"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.ID, 18)
	assert.True(t, script.ValidateID(result.ID))

	records, err := conn.QueryAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Foo", records[0].Name)
	assert.Equal(t, "foo code", records[0].Code)
	assert.NotEmpty(t, records[0].LastModifiedDate)
	assert.Equal(t, mockUsername, records[0].CreatedBy.Username)
	assert.Equal(t, mockUsername, records[0].LastModifiedBy.Username)

	upd, err := conn.UpdateRecord(ctx, script.Upsert{ID: result.ID, Name: "Foo", Code: "updated"})
	require.NoError(t, err)
	assert.True(t, upd.Success)

	byID, err := conn.QueryRecordsByID(ctx, result.ID)
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "updated", byID[0].Code)

	ok, err := conn.DeleteRecord(ctx, result.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = conn.DeleteRecord(ctx, result.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryByNameDuplicates(t *testing.T) {
	server, storage := testServer(t)
	conn := testConn(t, server.URL)
	ctx := context.Background()

	_, err := storage.Insert("Foo", "first")
	require.NoError(t, err)
	_, err = storage.Insert("Foo", "second")
	require.NoError(t, err)
	_, err = storage.Insert("Bar", "other")
	require.NoError(t, err)

	// Имя не уникально - оба совпадения возвращаются
	records, err := conn.QueryRecordsByName(ctx, "Foo", false)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	// Запрос без кода не содержит тел
	records, err = conn.QueryRecordsByName(ctx, "Foo", true)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Empty(t, rec.Code)
		assert.Empty(t, rec.TranspiledCode)
		assert.Equal(t, "Foo", rec.Name)
	}

	records, err = conn.QueryRecordsByName(ctx, "Baz", false)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQueryByNameWithQuote(t *testing.T) {
	server, storage := testServer(t)
	conn := testConn(t, server.URL)

	_, err := storage.Insert("O'Brien", "code")
	require.NoError(t, err)

	records, err := conn.QueryRecordsByName(context.Background(), "O'Brien", false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "O'Brien", records[0].Name)
}

func TestInsertWithoutName(t *testing.T) {
	server, _ := testServer(t)
	conn := testConn(t, server.URL)

	result, err := conn.InsertRecord(context.Background(), script.Upsert{Code: "code"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "REQUIRED_FIELD_MISSING")
}

func TestTokenRefreshFlow(t *testing.T) {
	server, _ := testServer(t)
	conn := testConn(t, server.URL)

	require.NoError(t, conn.CheckCredentials(context.Background()))
	assert.Equal(t, "mock-access-token", conn.OrgInfo().AuthInfo.AccessToken)
	assert.Equal(t, mockUsername, conn.OrgInfo().Username)
	assert.Equal(t, mockOrgID, conn.OrgInfo().OrgID)
}

func TestQuoteModel(t *testing.T) {
	server, _ := testServer(t)
	conn := testConn(t, server.URL)

	model, err := conn.FetchQuoteModel(context.Background(), "a0Q000000000001AAA")
	require.NoError(t, err)
	assert.Contains(t, model, "a0Q000000000001AAA")
	assert.Contains(t, model, "lineItems")
}
