package script

import "regexp"

// APIName - API-имя объекта кастом-скрипта в Salesforce CPQ
const APIName = "SBQQ__CustomScript__c"

// Поля записи, доступные провайдеру содержимого
const (
	FieldCode           = "SBQQ__Code__c"
	FieldTranspiledCode = "SBQQ__TranspiledCode__c"
)

// OrgType - тип организации Salesforce
type OrgType string

const (
	OrgTypeSandbox    OrgType = "Sandbox"
	OrgTypeDeveloper  OrgType = "Developer"
	OrgTypeProduction OrgType = "Production"
	OrgTypeCustomURL  OrgType = "Custom URL"
)

// LoginURL возвращает login URL для известных типов организаций.
// Для OrgTypeCustomURL URL задаёт пользователь, возвращается пустая строка.
func (t OrgType) LoginURL() string {
	switch t {
	case OrgTypeSandbox:
		return "https://test.salesforce.com"
	case OrgTypeDeveloper, OrgTypeProduction:
		return "https://login.salesforce.com"
	default:
		return ""
	}
}

// UserRef - ссылка на пользователя Salesforce в audit-полях
type UserRef struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	Username string `json:"Username"`
}

// CustomScriptBase - запись кастом-скрипта без тела кода.
// Ровно эта форма хранится в конфигурационном документе проекта,
// чтобы документ не разрастался.
type CustomScriptBase struct {
	ID               string  `json:"Id"`
	Name             string  `json:"Name"`
	CreatedByID      string  `json:"CreatedById"`
	CreatedDate      string  `json:"CreatedDate"`
	LastModifiedByID string  `json:"LastModifiedById"`
	LastModifiedDate string  `json:"LastModifiedDate"`
	GroupFields      string  `json:"SBQQ__GroupFields__c"`
	QuoteFields      string  `json:"SBQQ__QuoteFields__c"`
	QuoteLineFields  string  `json:"SBQQ__QuoteLineFields__c"`
	CreatedBy        UserRef `json:"CreatedBy"`
	LastModifiedBy   UserRef `json:"LastModifiedBy"`
}

// CustomScript - полная запись кастом-скрипта, включая тело кода
type CustomScript struct {
	CustomScriptBase
	Code           string `json:"SBQQ__Code__c"`
	TranspiledCode string `json:"SBQQ__TranspiledCode__c,omitempty"`
}

// WithoutCode возвращает запись без тела кода
func (s CustomScript) WithoutCode() CustomScriptBase {
	return s.CustomScriptBase
}

// StripCode убирает тела кода из набора записей
func StripCode(records []CustomScript) []CustomScriptBase {
	stripped := make([]CustomScriptBase, 0, len(records))
	for _, rec := range records {
		stripped = append(stripped, rec.WithoutCode())
	}
	return stripped
}

var recordIDPattern = regexp.MustCompile(`^([a-zA-Z0-9]{15}|[a-zA-Z0-9]{18})$`)

// ValidateID проверяет, что строка похожа на Id записи Salesforce
// (15 или 18 алфавитно-цифровых символов).
func ValidateID(recordID string) bool {
	return recordIDPattern.MatchString(recordID)
}
