// internal/sfdc/queries.go
package sfdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"qcpsync/internal/domain/script"
)

const (
	queryFieldsBase       = "Id, Name"
	queryFieldsUserFields = "CreatedById, CreatedDate, LastModifiedById, LastModifiedDate, " +
		"CreatedBy.Id, CreatedBy.Name, CreatedBy.Username, " +
		"LastModifiedBy.Id, LastModifiedBy.Name, LastModifiedBy.Username"
	queryFieldsWithoutCode = queryFieldsBase + ", " + queryFieldsUserFields
	queryFieldsAll         = queryFieldsWithoutCode +
		", SBQQ__Code__c, SBQQ__TranspiledCode__c, SBQQ__GroupFields__c, SBQQ__QuoteFields__c, SBQQ__QuoteLineFields__c"
)

// soqlEscape экранирует одинарные кавычки в литералах SOQL
func soqlEscape(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}

func queryAll() string {
	return "SELECT " + queryFieldsAll + " FROM " + script.APIName
}

func queryAllWithoutCode() string {
	return "SELECT " + queryFieldsWithoutCode + " FROM " + script.APIName
}

func queryByID(id string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE Id = '%s'", queryFieldsAll, script.APIName, soqlEscape(id))
}

func queryByName(name string, skipCode bool) string {
	fields := queryFieldsAll
	if skipCode {
		fields = queryFieldsWithoutCode
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE Name = '%s'", fields, script.APIName, soqlEscape(name))
}

// queryResponse - обёртка результата SOQL-запроса
type queryResponse struct {
	TotalSize int             `json:"totalSize"`
	Done      bool            `json:"done"`
	Records   json.RawMessage `json:"records"`
}

func (c *Connection) query(ctx context.Context, soql string, records interface{}) error {
	rawURL := fmt.Sprintf("/services/data/%s/query?q=%s", apiVersion, url.QueryEscape(soql))

	var resp queryResponse
	if err := c.getJSON(ctx, rawURL, &resp); err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Records, records); err != nil {
		return fmt.Errorf("ошибка парсинга записей: %w", err)
	}
	return nil
}

// QueryAllRecords возвращает все скрипты организации вместе с кодом
func (c *Connection) QueryAllRecords(ctx context.Context) ([]script.CustomScript, error) {
	var records []script.CustomScript
	if err := c.query(ctx, queryAll(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// QueryAllRecordsWithoutCode возвращает все скрипты без тела кода -
// для списков и поиска дешевле не тянуть код
func (c *Connection) QueryAllRecordsWithoutCode(ctx context.Context) ([]script.CustomScriptBase, error) {
	var records []script.CustomScriptBase
	if err := c.query(ctx, queryAllWithoutCode(), &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Connection) QueryRecordsByID(ctx context.Context, id string) ([]script.CustomScript, error) {
	var records []script.CustomScript
	if err := c.query(ctx, queryByID(id), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// QueryRecordsByName ищет записи по точному имени. Имя на стороне
// организации не уникально - вызывающий обязан обработать ноль, одно
// или несколько совпадений.
func (c *Connection) QueryRecordsByName(ctx context.Context, name string, skipCode bool) ([]script.CustomScript, error) {
	var records []script.CustomScript
	if err := c.query(ctx, queryByName(name, skipCode), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// saveResponse - ответ REST API на insert/update
type saveResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Errors  []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	} `json:"errors"`
}

func (r saveResponse) toResult() *script.SaveResult {
	result := &script.SaveResult{
		ID:      r.ID,
		Success: r.Success,
	}
	for _, e := range r.Errors {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", e.ErrorCode, e.Message))
	}
	return result
}

func (c *Connection) sobjectURL(id string) string {
	base := fmt.Sprintf("/services/data/%s/sobjects/%s", apiVersion, script.APIName)
	if id != "" {
		base += "/" + id
	}
	return base
}

// InsertRecord создает запись. Неуспешный, но корректно оформленный
// ответ возвращается как SaveResult с Success=false, а не ошибкой.
func (c *Connection) InsertRecord(ctx context.Context, rec script.Upsert) (*script.SaveResult, error) {
	rec.ID = ""
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка маршалинга записи: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.restURL(c.sobjectURL("")), bytes.NewReader(body), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	var saveResp saveResponse
	if err := json.Unmarshal(data, &saveResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &script.RemoteOperationError{Op: "insert", Err: apiError(resp.StatusCode, data)}
		}
		return nil, fmt.Errorf("ошибка парсинга ответа: %w", err)
	}

	if resp.StatusCode >= 400 && len(saveResp.Errors) == 0 {
		return nil, &script.RemoteOperationError{Op: "insert", Err: apiError(resp.StatusCode, data)}
	}
	return saveResp.toResult(), nil
}

// UpdateRecord обновляет запись по Id. Успешный PATCH возвращает
// 204 без тела, поэтому SaveResult собирается вручную.
func (c *Connection) UpdateRecord(ctx context.Context, rec script.Upsert) (*script.SaveResult, error) {
	id := rec.ID
	rec.ID = ""
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка маршалинга записи: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPatch, c.restURL(c.sobjectURL(id)), bytes.NewReader(body), false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &script.SaveResult{ID: id, Success: true}, nil
	}

	var apiErrs []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(data, &apiErrs); err == nil && len(apiErrs) > 0 {
		result := &script.SaveResult{ID: id, Success: false}
		for _, e := range apiErrs {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", e.ErrorCode, e.Message))
		}
		return result, nil
	}
	return nil, &script.RemoteOperationError{Op: "update", Err: apiError(resp.StatusCode, data)}
}

// DeleteRecord удаляет запись по Id, возвращает признак успеха
func (c *Connection) DeleteRecord(ctx context.Context, recordID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, c.restURL(c.sobjectURL(recordID)), nil, false)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return true, nil
	}

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, &script.RemoteOperationError{Op: "delete", Err: apiError(resp.StatusCode, data)}
}

// ApexGet выполняет GET к apexrest-эндпоинту и возвращает сырой ответ
func (c *Connection) ApexGet(ctx context.Context, path string) (string, error) {
	rawURL := c.restURL("/services/apexrest" + path)

	resp, err := c.doRequest(ctx, http.MethodGet, rawURL, nil, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", &script.RemoteOperationError{Op: "apex GET " + path, Err: apiError(resp.StatusCode, data)}
	}
	return string(data), nil
}

// FetchQuoteModel получает модель квоты через QuoteReader и
// форматирует её с отступами
func (c *Connection) FetchQuoteModel(ctx context.Context, quoteID string) (string, error) {
	raw, err := c.ApexGet(ctx, "/SBQQ/ServiceRouter?reader=SBQQ.QuoteAPI.QuoteReader&uid="+url.QueryEscape(quoteID))
	if err != nil {
		return "", err
	}

	// Apex возвращает JSON-строку с вложенным JSON
	var payload string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		payload = raw
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", fmt.Errorf("ошибка парсинга модели квоты: %w", err)
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ошибка форматирования модели квоты: %w", err)
	}
	return string(pretty), nil
}

// FrontDoorURL строит URL для открытия записи в браузере с текущей
// сессией
func (c *Connection) FrontDoorURL(recordID string) string {
	return fmt.Sprintf("%s/secur/frontdoor.jsp?sid=%s&retURL=/%s",
		c.orgInfo.AuthInfo.InstanceURL, c.orgInfo.AuthInfo.AccessToken, recordID)
}
