package config

import (
	"testing"
	"time"

	"github.com/bxcodec/faker/v3"
	"github.com/stretchr/testify/assert"
)

func TestStringVal(t *testing.T) {
	val := StringParam{}.emptyValue().(StringVal)
	productID := faker.UUIDDigit()
	if assert.NoError(t, val.set(productID)) {
		assert.Equal(t, productID, val.Value())
	}
	assert.Error(t, val.set(42.0))
	assert.Equal(t, productID, val.Value())

	assert.Equal(t, "1.0", NewStringVal("1.0").Value())
}

func TestDurationVal(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		want    time.Duration
		wantErr bool
	}{
		{name: "duration string", raw: "2s", want: 2 * time.Second},
		{name: "compound string", raw: "1m30s", want: 90 * time.Second},
		{name: "json number as seconds", raw: 30.0, want: 30 * time.Second},
		{name: "env number as seconds", raw: "300", want: 5 * time.Minute},
		{name: "fraction of a second", raw: "0.5", want: 500 * time.Millisecond},
		{name: "garbage", raw: "soon", wantErr: true},
		{name: "negative", raw: "-2s", wantErr: true},
		{name: "bool", raw: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val := DurationParam{}.emptyValue().(DurationVal)
			err := val.set(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, time.Duration(0), val.Value())
				return
			}
			if assert.NoError(t, err) {
				assert.Equal(t, tt.want, val.Value())
			}
		})
	}
	assert.Equal(t, time.Minute, NewDurationVal(time.Minute).Value())
}
