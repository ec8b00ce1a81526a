package sfdc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"qcpsync/internal/config"
	"qcpsync/internal/domain/script"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConnection(t *testing.T, serverURL string) *Connection {
	t.Helper()

	conn, err := NewConnection(&OrgInfo{
		OrgType:  script.OrgTypeDeveloper,
		LoginURL: serverURL,
		AuthInfo: &AuthInfo{
			AccessToken:  "token-1",
			RefreshToken: "refresh-1",
			InstanceURL:  serverURL,
			ID:           serverURL + "/id/00D/005",
		},
	}, &config.Config{HTTPTimeout: 5}, testLogger())
	require.NoError(t, err)
	return conn
}

func TestNewConnectionWithoutAuth(t *testing.T) {
	_, err := NewConnection(&OrgInfo{LoginURL: "https://login.salesforce.com"}, &config.Config{HTTPTimeout: 5}, testLogger())
	assert.ErrorIs(t, err, script.ErrNotAuthenticated)

	_, err = NewConnection(nil, &config.Config{HTTPTimeout: 5}, testLogger())
	assert.ErrorIs(t, err, script.ErrNotAuthenticated)
}

func TestQueryBuilders(t *testing.T) {
	assert.Equal(t,
		"SELECT "+queryFieldsAll+" FROM SBQQ__CustomScript__c",
		queryAll(),
	)
	assert.Contains(t, queryByID("a0B123"), "WHERE Id = 'a0B123'")
	assert.Contains(t, queryByName("My Script", false), "WHERE Name = 'My Script'")
	assert.Contains(t, queryByName("My Script", false), "SBQQ__Code__c")
	assert.NotContains(t, queryByName("My Script", true), "SBQQ__Code__c")

	// Одинарные кавычки экранируются
	assert.Contains(t, queryByName("O'Brien", true), `Name = 'O\'Brien'`)
}

func TestQueryRecordsByName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/data/v45.0/query", r.URL.Path)
		soql := r.URL.Query().Get("q")
		require.Contains(t, soql, "WHERE Name = 'Foo'")
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]interface{}{
				{"Id": "a0B000000000001AAA", "Name": "Foo", "SBQQ__Code__c": "export function x() {}"},
			},
		})
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	records, err := conn.QueryRecordsByName(context.Background(), "Foo", false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a0B000000000001AAA", records[0].ID)
	assert.Equal(t, "export function x() {}", records[0].Code)
}

func TestDoRequestRefreshesTokenOn401(t *testing.T) {
	var refreshed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/services/oauth2/token":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
			require.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
			refreshed = true
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "token-2",
				"token_type":   "Bearer",
			})
		case r.Header.Get("Authorization") != "Bearer token-2":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`[{"message":"Session expired","errorCode":"INVALID_SESSION_ID"}]`))
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"totalSize": 0,
				"done":      true,
				"records":   []interface{}{},
			})
		}
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	var gotToken string
	conn.OnTokenRefresh(func(accessToken string) {
		gotToken = accessToken
	})

	records, err := conn.QueryAllRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.True(t, refreshed)
	assert.Equal(t, "token-2", gotToken)
	assert.Equal(t, "token-2", conn.OrgInfo().AuthInfo.AccessToken)
}

func TestInsertRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/services/data/v45.0/sobjects/SBQQ__CustomScript__c", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Foo", body["Name"])
		require.Equal(t, "bar", body["SBQQ__Code__c"])
		_, hasID := body["Id"]
		require.False(t, hasID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "a0B000000000002AAA",
			"success": true,
			"errors":  []interface{}{},
		})
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	result, err := conn.InsertRecord(context.Background(), script.Upsert{Name: "Foo", Code: "bar"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "a0B000000000002AAA", result.ID)
}

func TestInsertRecordValidationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"errors": []map[string]string{
				{"message": "Required fields are missing: [Name]", "errorCode": "REQUIRED_FIELD_MISSING"},
			},
		})
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	// Корректно оформленный неуспех - не ошибка транспорта
	result, err := conn.InsertRecord(context.Background(), script.Upsert{Code: "bar"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "REQUIRED_FIELD_MISSING")
}

func TestUpdateRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/a0B000000000001AAA"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	result, err := conn.UpdateRecord(context.Background(), script.Upsert{ID: "a0B000000000001AAA", Name: "Foo", Code: "baz"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "a0B000000000001AAA", result.ID)
}

func TestDeleteRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`[{"message":"not found","errorCode":"NOT_FOUND"}]`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	ok, err := conn.DeleteRecord(context.Background(), "a0B000000000001AAA")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = conn.DeleteRecord(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchQuoteModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/services/apexrest/SBQQ/ServiceRouter", r.URL.Path)
		require.Equal(t, "SBQQ.QuoteAPI.QuoteReader", r.URL.Query().Get("reader"))
		require.Equal(t, "a0Q000000000001AAA", r.URL.Query().Get("uid"))

		// Apex возвращает JSON-строку с вложенным JSON
		json.NewEncoder(w).Encode(`{"record":{"Id":"a0Q000000000001AAA"}}`)
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	model, err := conn.FetchQuoteModel(context.Background(), "a0Q000000000001AAA")
	require.NoError(t, err)
	assert.Contains(t, model, "\"a0Q000000000001AAA\"")
	assert.Contains(t, model, "\n  ")
}

func TestRemoteOperationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`[{"message":"malformed query","errorCode":"MALFORMED_QUERY"}]`))
	}))
	defer server.Close()

	conn := testConnection(t, server.URL)

	_, err := conn.QueryAllRecords(context.Background())
	var remoteErr *script.RemoteOperationError
	require.True(t, errors.As(err, &remoteErr))
	assert.Contains(t, remoteErr.Error(), "MALFORMED_QUERY")
}

func TestParseAuthCallback(t *testing.T) {
	fragment := url.Values{}
	fragment.Set("access_token", "tok")
	fragment.Set("refresh_token", "ref")
	fragment.Set("instance_url", "https://example.my.salesforce.com")
	fragment.Set("id", "https://login.salesforce.com/id/00D/005")
	fragment.Set("issued_at", "1546300800000")

	auth, err := ParseAuthCallback("http://localhost:1717/auth_callback#" + fragment.Encode())
	require.NoError(t, err)
	assert.Equal(t, "tok", auth.AccessToken)
	assert.Equal(t, "ref", auth.RefreshToken)
	assert.Equal(t, "https://example.my.salesforce.com", auth.InstanceURL)

	_, err = ParseAuthCallback("#error=access_denied&error_description=denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")

	_, err = ParseAuthCallback("#state=abc")
	require.Error(t, err)
}

func TestAuthorizeURL(t *testing.T) {
	raw := AuthorizeURL("https://test.salesforce.com")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/services/oauth2/authorize", parsed.Path)
	assert.Equal(t, "token", parsed.Query().Get("response_type"))
	assert.Equal(t, clientID, parsed.Query().Get("client_id"))
}
