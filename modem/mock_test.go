package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/drivetest/modem"
)

// MockSequenceBuilder records the transport calls of consecutive
// exchanges: reset, write, one read carrying the response, then idle reads
// until the window closes.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

func (b *MockSequenceBuilder) Exchange(cmd, resp string) *MockSequenceBuilder {
	wire := cmd + "\r\n"
	b.calls = append(b.calls,
		b.transport.EXPECT().ResetInputBuffer().Return(nil),
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, resp), nil
		}),
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil).AnyTimes(),
	)
	return b
}

func (b *MockSequenceBuilder) AT() *MockSequenceBuilder {
	return b.Exchange("AT", "AT\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Deregister() *MockSequenceBuilder {
	return b.Exchange("AT+COPS=2", "AT+COPS=2\r\nOK\r\n")
}

func (b *MockSequenceBuilder) OperatorAttached() *MockSequenceBuilder {
	return b.Exchange("AT+COPS?", "AT+COPS?\r\n+COPS: 0,0,\"Orange F\",8\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) OperatorSearching() *MockSequenceBuilder {
	return b.Exchange("AT+COPS?", "AT+COPS?\r\n+COPS: 0\r\n\r\nOK\r\n")
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}
