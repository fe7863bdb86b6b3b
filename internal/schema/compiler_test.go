package schema

import (
	"context"
	"testing"
	"time"

	"petadopt/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_PrepareAndValidate(t *testing.T) {
	compiler := NewCompilerWithCache(64, time.Hour)
	ctx := context.Background()

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"name"},
	}

	key, err := compiler.Prepare(ctx, schema)
	require.NoError(t, err)

	// Same schema hits the cache
	again, err := compiler.Prepare(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	assert.NoError(t, compiler.Validate(ctx, key, map[string]interface{}{"name": "test"}))

	err = compiler.Validate(ctx, key, map[string]interface{}{})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.NotEmpty(t, verrs)
}

func TestCompiler_UnknownSchema(t *testing.T) {
	compiler := NewCompilerWithCache(8, time.Hour)
	err := compiler.Validate(context.Background(), "missing", map[string]interface{}{})
	assert.ErrorContains(t, err, "not registered")
}

func validForm() map[string]interface{} {
	return map[string]interface{}{
		"personalInfo": model.PersonalInfo{
			FullName:  "Maria Souza",
			Email:     "maria@example.com",
			BirthDate: "1990-04-12",
			Phone:     "(11) 98765-4321",
		},
		"address": model.RequestAddress{
			Street:   "Rua das Flores",
			Number:   "42",
			Zip:      "01310-100",
			District: "Centro",
			City:     "São Paulo",
			State:    "SP",
		},
		"homeInfo": model.HomeInfo{
			DwellingType:   "casa",
			AnimalsAllowed: true,
			FamilyAgrees:   true,
		},
	}
}

func TestAdoptionRequestForm(t *testing.T) {
	compiler, err := NewFormCompiler(16)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, compiler.Validate(ctx, AdoptionRequestForm, validForm()))

	form := validForm()
	info := form["personalInfo"].(model.PersonalInfo)
	info.Email = "not-an-email"
	form["personalInfo"] = info
	addr := form["address"].(model.RequestAddress)
	addr.State = "sao paulo"
	form["address"] = addr

	err = compiler.Validate(ctx, AdoptionRequestForm, form)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "/personalInfo/email")
	assert.Contains(t, fields, "/address/state")
}

func TestAdoptionRequestForm_DwellingType(t *testing.T) {
	compiler, err := NewFormCompiler(16)
	require.NoError(t, err)

	form := validForm()
	home := form["homeInfo"].(model.HomeInfo)
	home.DwellingType = "barco"
	form["homeInfo"] = home

	err = compiler.Validate(context.Background(), AdoptionRequestForm, form)
	assert.Error(t, err)
}
