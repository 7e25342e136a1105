package model

type CreateLead struct {
	PhoneNumber string                 `json:"phone_number"`
	Name        string                 `json:"name"`
	Email       string                 `json:"email"`
	Company     string                 `json:"company"`
	CustomData  map[string]interface{} `json:"custom_data"`
}

type CreateLeadsBatch struct {
	Leads []CreateLead `json:"leads"`
}

type TriggerBatch struct {
	Source string `json:"source"`
}
