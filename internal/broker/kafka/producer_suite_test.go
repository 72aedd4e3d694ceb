package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BearBump/DispatchDesk/internal/broker/messages"
	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type closingWriter struct {
	writerMock
	closed bool
}

func (w *closingWriter) Close() error {
	w.closed = true
	return nil
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) TestNewProducer_NotNil() {
	p := NewProducer([]string{"localhost:0"})
	s.Require().NotNil(p)
	s.Require().NoError(p.Close())
}

func (s *ProducerSuite) TestPublish_AlertKeyedByOrder() {
	a := &models.Alert{
		OrderID: "OD1", Rider: "王明", Kind: models.AlertKindDeviation, TS: 1_700_000_000,
		Point: models.Point{Lng: 116.4, Lat: 39.9}, Severity: models.SeverityDeviation,
	}
	payload, err := json.Marshal(messages.NewAlertRaised(a))
	s.Require().NoError(err)

	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 {
				return false
			}
			var got messages.AlertRaised
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				return false
			}
			return msgs[0].Topic == "dispatch.alerts" && string(msgs[0].Key) == "OD1" &&
				got.Kind == models.AlertKindDeviation && got.Lng == 116.4
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), "dispatch.alerts", []byte(a.OrderID), payload))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_ErrorWrapped() {
	want := errors.New("boom")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.Publish(context.Background(), "t", []byte("k"), []byte("v"))
	s.Require().Error(err)
	s.Require().ErrorIs(err, want)
	s.Require().Contains(err.Error(), "kafka publish")
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestClose() {
	// writer без Close
	s.Require().NoError(s.p.Close())

	cw := &closingWriter{}
	s.Require().NoError(newProducerWithWriter(cw).Close())
	s.Require().True(cw.closed)
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
