package schema

// DefaultSchema is used when an upload does not name a schema.
const DefaultSchema = "contacts"

func init() {
	Register(Contacts())
}

// Contacts returns the built-in contact list schema.
func Contacts() Schema {
	return Schema{
		Name:        "contacts",
		Label:       "Contacts",
		Description: "People and how to reach them",
		Fields: []TargetField{
			{Name: "first_name", Type: TypeString, Required: true, Description: "Given name"},
			{Name: "last_name", Type: TypeString, Required: true, Description: "Family name"},
			{Name: "email", Type: TypeEmail, Required: true, Description: "Primary email address"},
			{Name: "phone", Type: TypePhone, Description: "Primary phone number"},
			{Name: "address", Type: TypeAddress, Description: "Street address"},
			{Name: "city", Type: TypeString, Description: "City or town"},
			{Name: "state", Type: TypeString, Description: "State, province or region"},
			{Name: "zip_code", Type: TypeString, Description: "ZIP or postal code"},
			{Name: "company", Type: TypeString, Description: "Employer or organization"},
			{Name: "country", Type: TypeString, Description: "Country"},
		},
	}
}
