package lead

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksAutoGenerated(t *testing.T) {
	phone := "5511988887777"

	assert.True(t, LooksAutoGenerated("", phone))
	assert.True(t, LooksAutoGenerated(phone, phone))
	assert.True(t, LooksAutoGenerated("+5511988887777", phone))
	assert.True(t, LooksAutoGenerated(AutoName(phone), phone))
	assert.True(t, LooksAutoGenerated("55 11 98888-7777", phone))

	assert.False(t, LooksAutoGenerated("Maria", phone))
	assert.False(t, LooksAutoGenerated("Maria 2", phone))
}
