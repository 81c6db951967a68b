package crm

// Field codes of the CRM's built-in multi-value contact fields.
const (
	fieldCodePhone = "PHONE"
	fieldCodeEmail = "EMAIL"
)

type fieldValue struct {
	Value string `json:"value"`
}

type customField struct {
	FieldCode string       `json:"field_code"`
	FieldName string       `json:"field_name,omitempty"`
	Values    []fieldValue `json:"values"`
}

type contactBody struct {
	ID                 int           `json:"id,omitempty"`
	Name               string        `json:"name,omitempty"`
	CustomFieldsValues []customField `json:"custom_fields_values,omitempty"`
}

// contactsEnvelope wraps contact collections in search, create and update responses.
type contactsEnvelope struct {
	Embedded struct {
		Contacts []contactBody `json:"contacts"`
	} `json:"_embedded"`
}

type leadEmbedded struct {
	Contacts  []contactRef `json:"contacts"`
	Companies []Company    `json:"companies"`
}

type contactRef struct {
	ID int `json:"id"`
}

type complexLeadBody struct {
	Name      string       `json:"name"`
	RequestID string       `json:"request_id,omitempty"`
	Embedded  leadEmbedded `json:"_embedded"`
}

type complexLeadResult struct {
	ID        int      `json:"id"`
	ContactID int      `json:"contact_id"`
	CompanyID int      `json:"company_id"`
	RequestID []string `json:"request_id"`
}

func newContactBody(id int, name, email, phone string) contactBody {
	return contactBody{
		ID:   id,
		Name: name,
		CustomFieldsValues: []customField{
			{FieldCode: fieldCodePhone, FieldName: "phone", Values: []fieldValue{{Value: phone}}},
			{FieldCode: fieldCodeEmail, FieldName: "email", Values: []fieldValue{{Value: email}}},
		},
	}
}

// contact flattens a wire contact, keeping the first value of each multi-value field.
func (b contactBody) contact() Contact {
	c := Contact{ID: b.ID, Name: b.Name}
	for _, field := range b.CustomFieldsValues {
		if len(field.Values) == 0 {
			continue
		}
		switch field.FieldCode {
		case fieldCodePhone:
			c.Phone = field.Values[0].Value
		case fieldCodeEmail:
			c.Email = field.Values[0].Value
		}
	}
	return c
}
