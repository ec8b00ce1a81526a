package script

// Upsert - полезная нагрузка insert/update записи
type Upsert struct {
	ID   string `json:"Id,omitempty"`
	Name string `json:"Name"`
	Code string `json:"SBQQ__Code__c"`
}

// SaveResult - результат insert/update/delete на удалённой стороне.
// Success=false при корректно оформленном, но неуспешном ответе -
// такой результат не является транспортной ошибкой.
type SaveResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}
