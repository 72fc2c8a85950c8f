package params_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opgrid/internal/descriptor"
	"opgrid/internal/params"
	"opgrid/internal/schema"
	"opgrid/internal/services"
)

func f64(v float64) *float64 { return &v }

func demoSchema() schema.Schema {
	return schema.Schema{
		Name: "demo",
		Kind: schema.KindOperator,
		Parameters: []schema.ParameterSpec{
			{Name: "count", Type: schema.TypeInteger, Mandatory: true, Min: f64(1), Max: f64(10)},
			{Name: "mode", Type: schema.TypeText, Default: []string{"fast"}, Values: []string{"fast", "slow"}},
			{Name: "level", Type: schema.TypeInteger, Min: f64(2), Max: f64(2)},
			{Name: "ratio", Type: schema.TypeReal, Default: []string{"0.50"}},
			{Name: "files", Type: schema.TypeText},
		},
	}
}

func validate(t *testing.T, raw string, opts ...params.Option) (params.Resolved, error) {
	t.Helper()
	d, err := descriptor.Parse(raw)
	require.NoError(t, err)
	return params.Validate(d, demoSchema(), opts...)
}

func TestValidateWithinBounds(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=5;")
	require.NoError(t, err)

	count, err := resolved.Int("count")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Empty(t, resolved.Warnings())
}

func TestValidateOutOfBounds(t *testing.T) {
	_, err := validate(t, "op=demo;count=50;")
	require.Error(t, err)

	var invalid *params.InvalidValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "count", invalid.Name)
	assert.Equal(t, "50", invalid.Value)
	assert.Equal(t, "max 10", invalid.Bound)
	assert.True(t, errors.Is(err, services.ErrValidation))

	_, err = validate(t, "op=demo;count=0")
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "min 1", invalid.Bound)
}

func TestValidateAdoptsDefault(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=2")
	require.NoError(t, err)
	assert.Equal(t, "fast", resolved.String("mode"))

	ratio, err := resolved.Float("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.5, ratio)

	assert.False(t, resolved.Has("files"))
	assert.Equal(t, []string{"count", "mode", "level", "ratio"}, resolved.Names())
}

func TestValidateForcesFixedValueWithWarning(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=2;level=7")
	require.NoError(t, err)

	level, err := resolved.Int("level")
	require.NoError(t, err)
	assert.Equal(t, int64(2), level)

	warnings := resolved.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "level", warnings[0].Parameter)
}

func TestValidateFixedValueWithoutChangeHasNoWarning(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=2;level=2")
	require.NoError(t, err)
	assert.Empty(t, resolved.Warnings())
}

func TestValidateMissingMandatory(t *testing.T) {
	_, err := validate(t, "op=demo;mode=slow")
	var missing *params.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "count", missing.Name)
	assert.True(t, errors.Is(err, params.ErrMissingParameter))
}

func TestValidateEnumeratedSet(t *testing.T) {
	_, err := validate(t, "op=demo;count=1;mode=fast|warp")
	var invalid *params.InvalidValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "mode", invalid.Name)
	assert.Equal(t, "warp", invalid.Value)
	assert.Empty(t, invalid.Bound)
}

func TestValidateMultiValue(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=1;files=a.nc|%%b|c.nc%%")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.nc", "b|c.nc"}, resolved.Strings("files"))
}

func TestValidateStrictNumeric(t *testing.T) {
	_, err := validate(t, "op=demo;count=five")
	var mismatch *params.TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, schema.TypeInteger, mismatch.Type)

	_, err = validate(t, "op=demo;count=1;ratio=NaN")
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "ratio", mismatch.Name)
}

func TestValidateLegacyNumeric(t *testing.T) {
	resolved, err := validate(t, "op=demo;count=7abc;ratio=x", params.LegacyNumeric(true))
	require.NoError(t, err)

	count, err := resolved.Int("count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	ratio, err := resolved.Float("ratio")
	require.NoError(t, err)
	assert.Zero(t, ratio)

	_, err = validate(t, "op=demo;count=abc", params.LegacyNumeric(true))
	var invalid *params.InvalidValueError
	require.True(t, errors.As(err, &invalid), "zero falls below min")
}

func TestValidateReportsFirstFailureInSchemaOrder(t *testing.T) {
	_, err := validate(t, "op=demo;count=99;mode=bogus")
	var invalid *params.InvalidValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "count", invalid.Name)
}

func TestValidateWarnsOnUndeclaredNames(t *testing.T) {
	resolved, err := validate(t, "op=demo;jobid=j1;session=s;count=3;extra=1")
	require.NoError(t, err)
	warnings := resolved.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "extra", warnings[0].Parameter)
	assert.False(t, resolved.Has("extra"))
}

// Any accepted result satisfies every declared constraint.
func TestValidateTotality(t *testing.T) {
	inputs := []string{
		"op=demo;count=1", "op=demo;count=10;level=9", "op=demo;count=3;mode=slow;ratio=1e3",
		"op=demo;count=11", "op=demo", "op=demo;count=2;mode=x", "op=demo;count=2.5",
		"op=demo;count=4|5|6;files=z",
	}
	s := demoSchema()
	for _, raw := range inputs {
		resolved, err := validate(t, raw)
		if err != nil {
			var (
				missing  *params.MissingParameterError
				invalid  *params.InvalidValueError
				mismatch *params.TypeMismatchError
			)
			assert.True(t, errors.As(err, &missing) || errors.As(err, &invalid) || errors.As(err, &mismatch), raw)
			assert.Zero(t, resolved.Len(), raw)
			continue
		}
		for _, spec := range s.Parameters {
			if spec.Mandatory {
				assert.True(t, resolved.Has(spec.Name), raw)
			}
			value, ok := resolved.Lookup(spec.Name)
			if !ok || !spec.Type.Numeric() {
				continue
			}
			for _, element := range value.Elements {
				f, err := strconv.ParseFloat(element, 64)
				require.NoError(t, err, raw)
				if spec.Min != nil {
					assert.GreaterOrEqual(t, f, *spec.Min, raw)
				}
				if spec.Max != nil {
					assert.LessOrEqual(t, f, *spec.Max, raw)
				}
			}
		}
	}
}
