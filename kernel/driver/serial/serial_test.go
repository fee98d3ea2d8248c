package serial

import (
	"testing"

	"kernos/kernel/cpu/mock_cpu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func expectInit(hw *mock_cpu.MockHardware, loopbackReply uint8) *gomock.Call {
	writes := []struct {
		port uint16
		val  uint8
	}{
		{COM1 + 1, 0x00},
		{COM1 + 3, 0x80},
		{COM1 + 0, 0x03},
		{COM1 + 1, 0x00},
		{COM1 + 3, 0x03},
		{COM1 + 2, 0xc7},
		{COM1 + 4, 0x0b},
		{COM1 + 4, 0x1e},
		{COM1 + 0, 0xae},
	}

	var calls []any
	for _, w := range writes {
		calls = append(calls, hw.EXPECT().WritePort8(w.port, w.val))
	}
	last := hw.EXPECT().ReadPort8(COM1).Return(loopbackReply)
	calls = append(calls, last)
	gomock.InOrder(calls...)

	return last
}

func TestInit(t *testing.T) {
	ctrl := gomock.NewController(t)
	hw := mock_cpu.NewMockHardware(ctrl)

	loopback := expectInit(hw, 0xae)
	hw.EXPECT().WritePort8(COM1+4, uint8(0x0f)).After(loopback)

	var port Port
	assert.Nil(t, port.Init(hw, COM1))
}

func TestInitLoopbackFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	hw := mock_cpu.NewMockHardware(ctrl)

	expectInit(hw, 0x00)

	var port Port
	assert.Equal(t, ErrLoopbackFailed, port.Init(hw, COM1))
}

func TestWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	hw := mock_cpu.NewMockHardware(ctrl)

	port := Port{hw: hw, base: COM1}

	var sent []byte
	hw.EXPECT().WritePort8(COM1, gomock.Any()).DoAndReturn(func(_ uint16, val uint8) {
		sent = append(sent, val)
	}).AnyTimes()

	// The transmitter reports busy on every other poll
	var polls int
	hw.EXPECT().ReadPort8(COM1 + 5).DoAndReturn(func(_ uint16) uint8 {
		polls++
		if polls%2 == 1 {
			return 0x00
		}
		return 0x20
	}).AnyTimes()

	n, err := port.Write([]byte("ok\nbye"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("ok\r\nbye"), sent)
	assert.Equal(t, 2*len(sent), polls, "each byte waits for the transmitter")
}
