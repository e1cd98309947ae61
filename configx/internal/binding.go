// Package internal provides internal implementation for the configx package.
package internal

import (
	"reflect"
	"strconv"
	"time"

	"go.eggybyte.com/usagemon/core/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// BindToStruct sets fields tagged env:"KEY" from snapshot, falling back to
// the default:"..." tag when the key is absent. Nested structs are walked.
func BindToStruct(snapshot map[string]string, target any) error {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() || targetValue.Elem().Kind() != reflect.Struct {
		return errors.New(errors.CodeInvalidArgument, "target must be a pointer to struct")
	}

	return bindStructFields(snapshot, targetValue.Elem())
}

func bindStructFields(snapshot map[string]string, structValue reflect.Value) error {
	structType := structValue.Type()

	for i := 0; i < structValue.NumField(); i++ {
		field := structValue.Field(i)
		fieldType := structType.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := bindStructFields(snapshot, field); err != nil {
					return err
				}
			}
			continue
		}

		value, exists := snapshot[envTag]
		if !exists {
			value = fieldType.Tag.Get("default")
		}

		if err := setFieldValue(field, value); err != nil {
			return errors.Build(errors.CodeInvalidArgument).
				WithOp("configx.bind").
				WithErr(err).
				WithMsgf("invalid value %q for %s", value, envTag).
				Err()
		}
	}

	return nil
}

// setFieldValue parses value into field. An empty value leaves the field
// untouched.
func setFieldValue(field reflect.Value, value string) error {
	if value == "" {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return errors.New(errors.CodeInvalidArgument, "unsupported field type: "+field.Kind().String())
	}

	return nil
}
