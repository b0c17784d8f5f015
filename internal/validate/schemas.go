package validate

// Request schemas for the HTTP surface.
var (
	Register = Schema{
		F("name", Rules{Required: true, Type: String, MinLength: 2, MaxLength: 100}),
		F("email", Rules{Required: true, Type: Email}),
		F("password", Rules{Required: true, Type: String, MinLength: 8, MaxLength: 100}),
		F("role", Rules{Type: String, Enum: []string{"user", "developer"}}),
	}

	Login = Schema{
		F("email", Rules{Required: true, Type: Email}),
		F("password", Rules{Required: true, Type: String}),
	}

	UpdateProfile = Schema{
		F("name", Rules{Type: String, MinLength: 2, MaxLength: 100}),
		F("email", Rules{Type: Email}),
	}

	ChangePassword = Schema{
		F("currentPassword", Rules{Required: true, Type: String}),
		F("newPassword", Rules{Required: true, Type: String, MinLength: 8, MaxLength: 100}),
	}

	CreateApp = Schema{
		F("name", Rules{Required: true, Type: String, MinLength: 2, MaxLength: 100}),
		F("description", Rules{Type: String, MaxLength: 5000}),
		F("short_description", Rules{Type: String, MaxLength: 255}),
		F("category", Rules{Required: true, Type: String, MaxLength: 50}),
		F("price", Rules{Type: Number, Min: Bound(0), Max: Bound(1000)}),
		F("type", Rules{Required: true, Type: String, Enum: []string{"apk", "aab", "pwa"}}),
		F("version", Rules{Required: true, Type: String, MaxLength: 20}),
	}

	UpdateApp = Schema{
		F("name", Rules{Type: String, MinLength: 2, MaxLength: 100}),
		F("description", Rules{Type: String, MaxLength: 5000}),
		F("short_description", Rules{Type: String, MaxLength: 255}),
		F("category", Rules{Type: String, MaxLength: 50}),
		F("price", Rules{Type: Number, Min: Bound(0), Max: Bound(1000)}),
		F("version", Rules{Type: String, MaxLength: 20}),
	}

	Review = Schema{
		F("rating", Rules{Required: true, Type: Integer, Min: Bound(1), Max: Bound(5)}),
		F("comment", Rules{Type: String, MaxLength: 1000}),
	}

	Checkout = Schema{
		F("appId", Rules{Required: true, Type: String}),
	}

	Refund = Schema{
		F("amount", Rules{Type: Number, Min: Bound(0.01)}),
	}
)

var UpdateRole = Schema{
	F("role", Rules{Required: true, Type: String, Enum: []string{"user", "developer", "admin"}}),
}
