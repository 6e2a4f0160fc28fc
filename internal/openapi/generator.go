package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// GenerateAuthSpec generates the OpenAPI 3.1 document for the authentication
// API. headerName is the custom credential header accepted alongside
// Authorization and the session cookie.
func GenerateAuthSpec(baseURL, headerName, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Turnstile Auth API",
			Description: "Session login, signup and API key management. Every authenticated endpoint accepts a session token or an API key.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["credentialHeader"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: headerName,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT or API key",
		},
	}
	doc.Components.SecuritySchemes["sessionCookie"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: "auth",
		},
	}

	addSchemas(doc.Components.Schemas)

	authenticated := &openapi3.SecurityRequirements{
		{"credentialHeader": {}},
		{"bearerAuth": {}},
		{"sessionCookie": {}},
	}
	public := &openapi3.SecurityRequirements{}

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/api/v1/auth/signup", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Create an account",
			OperationID: "signup",
			Security:    public,
			RequestBody: jsonBody("SignupRequest"),
			Responses:   newResponses("201", "Account created", ref("SessionResponse")),
		},
	})
	doc.Paths.Set("/api/v1/auth/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Log in with email and password",
			OperationID: "login",
			Security:    public,
			RequestBody: jsonBody("LoginRequest"),
			Responses:   newResponses("200", "Session issued; also set as the auth cookie", ref("SessionResponse")),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Log out (clears the auth cookie)",
			OperationID: "logout",
			Security:    public,
			Responses:   newResponses("200", "Cookie cleared", successSchema()),
		},
	})
	doc.Paths.Set("/api/v1/auth/session/token", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Exchange a signed secret for a session",
			OperationID: "loginWithToken",
			Security:    public,
			RequestBody: jsonBody("TokenLoginRequest"),
			Responses:   newResponses("200", "Session issued", ref("SessionResponse")),
		},
	})
	doc.Paths.Set("/api/v1/auth/confirm", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Confirm a pending account",
			OperationID: "confirmEmail",
			Security:    public,
			RequestBody: jsonBody("ConfirmRequest"),
			Responses:   newResponses("200", "Account confirmed and session issued", ref("SessionResponse")),
		},
	})
	doc.Paths.Set("/api/v1/auth/me", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"session"},
			Summary:     "Return the verified identity",
			OperationID: "me",
			Security:    authenticated,
			Responses:   newResponses("200", "Verified claims and user", ref("MeResponse")),
		},
	})
	doc.Paths.Set("/api/v1/auth/api-key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"api-key"},
			Summary:     "List the caller's API keys",
			OperationID: "listAPIKeys",
			Security:    authenticated,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewQueryParameter("include_expired").
					WithDescription("Include keys past their expiry.").
					WithSchema(openapi3.NewBoolSchema())},
			},
			Responses: newResponses("200", "API keys", listSchema(ref("APIKey"))),
		},
		Post: &openapi3.Operation{
			Tags:        []string{"api-key"},
			Summary:     "Create an API key",
			Description: "The raw key is returned once and cannot be retrieved again.",
			OperationID: "createAPIKey",
			Security:    authenticated,
			RequestBody: jsonBody("CreateAPIKeyRequest"),
			Responses:   newResponses("201", "API key created", ref("CreateAPIKeyResponse")),
		},
	})
	doc.Paths.Set("/api/v1/auth/api-key/{keyId}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"api-key"},
			Summary:     "Revoke an API key",
			OperationID: "revokeAPIKey",
			Security:    authenticated,
			Parameters: openapi3.Parameters{
				{Value: openapi3.NewPathParameter("keyId").WithSchema(openapi3.NewStringSchema())},
			},
			Responses: newResponses("200", "API key revoked", successSchema()),
		},
	})

	return doc
}

func addSchemas(schemas openapi3.Schemas) {
	str := openapi3.NewStringSchema
	dateTime := openapi3.NewDateTimeSchema

	schemas["ErrorResponse"] = openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewObjectSchema().
			WithProperty("code", openapi3.NewInt32Schema()).
			WithProperty("message", str()).
			WithProperty("reason", str().WithEnum(
				"missing_credential", "not_a_token", "signature_invalid", "token_expired",
				"invalid_claims", "api_key_not_found", "api_key_expired", "internal",
				"invalid_input", "invalid_credentials", "user_not_active", "forbidden",
				"conflict", "not_found",
			)).
			WithProperty("context", openapi3.NewObjectSchema())).
		NewRef()

	schemas["User"] = openapi3.NewObjectSchema().
		WithProperty("id", str()).
		WithProperty("email", openapi3.NewStringSchema().WithFormat("email")).
		WithProperty("name", str()).
		WithProperty("status", str().WithEnum("active", "pending", "disabled")).
		WithProperty("last_login_at", dateTime().WithNullable()).
		WithProperty("created_at", dateTime()).
		WithProperty("updated_at", dateTime()).
		NewRef()

	schemas["Claims"] = openapi3.NewObjectSchema().
		WithProperty("uid", str()).
		WithProperty("iat", openapi3.NewInt64Schema()).
		WithProperty("exp", openapi3.NewInt64Schema()).
		NewRef()

	schemas["APIKey"] = openapi3.NewObjectSchema().
		WithProperty("id", str()).
		WithProperty("key_prefix", str()).
		WithProperty("label", str()).
		WithProperty("user_id", str()).
		WithProperty("expires_at", dateTime()).
		WithProperty("created_at", dateTime()).
		WithProperty("used_at", dateTime().WithNullable()).
		NewRef()

	schemas["SignupRequest"] = openapi3.NewObjectSchema().
		WithProperty("email", str()).
		WithProperty("password", openapi3.NewStringSchema().WithMinLength(8)).
		WithProperty("name", str()).
		WithProperty("pending", openapi3.NewBoolSchema()).
		WithRequired([]string{"email", "password", "name"}).
		NewRef()

	schemas["LoginRequest"] = openapi3.NewObjectSchema().
		WithProperty("email", str()).
		WithProperty("password", str()).
		WithRequired([]string{"email", "password"}).
		NewRef()

	schemas["TokenLoginRequest"] = openapi3.NewObjectSchema().
		WithProperty("email", str()).
		WithProperty("secret", str()).
		WithRequired([]string{"email", "secret"}).
		NewRef()

	schemas["ConfirmRequest"] = openapi3.NewObjectSchema().
		WithProperty("token", str()).
		WithRequired([]string{"token"}).
		NewRef()

	schemas["CreateAPIKeyRequest"] = openapi3.NewObjectSchema().
		WithProperty("label", str()).
		WithProperty("expires_in_days", openapi3.NewInt32Schema().WithMin(0).WithMax(3650)).
		NewRef()

	schemas["SessionResponse"] = &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithProperty("session_token", str()).
		WithProperty("token_type", str()).
		WithProperty("expires_at", openapi3.NewInt64Schema()).
		WithPropertyRef("user", ref("User"))}

	schemas["MeResponse"] = &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithPropertyRef("claims", ref("Claims")).
		WithPropertyRef("user", ref("User"))}

	schemas["CreateAPIKeyResponse"] = &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithProperty("api_key", str()).
		WithPropertyRef("key", ref("APIKey"))}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func jsonBody(schemaName string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(ref(schemaName)),
	}
}

func successSchema() *openapi3.SchemaRef {
	return openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		NewRef()
}

func listSchema(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
		WithProperty("resource", &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: item,
		}).
		WithProperty("meta", openapi3.NewObjectSchema().WithProperty("count", openapi3.NewInt64Schema()))}
}

// newResponses builds the success response plus the shared error responses.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, e := range []struct{ code, desc string }{
		{"400", "Bad request"},
		{"401", "Missing or rejected credential; see error.reason"},
		{"403", "Forbidden"},
		{"404", "Not found"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}
