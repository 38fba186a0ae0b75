package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

const CirculationTopic = "circulation"

type Config struct {
	Addrs []string `envconfig:"KAFKA_ADDRS"`
}

func (c Config) Enabled() bool {
	return len(c.Addrs) > 0
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

type EventType string

const (
	EventLoanRequested       EventType = "LOAN_REQUESTED"
	EventLoanApproved        EventType = "LOAN_APPROVED"
	EventLoanRejected        EventType = "LOAN_REJECTED"
	EventLoanReturned        EventType = "LOAN_RETURNED"
	EventReservationCreated  EventType = "RESERVATION_CREATED"
	EventReservationApproved EventType = "RESERVATION_APPROVED"
	EventReservationExpired  EventType = "RESERVATION_EXPIRED"
	EventBillUpserted        EventType = "BILL_UPSERTED"
	EventPaymentRecorded     EventType = "PAYMENT_RECORDED"
)

// Event describes a committed circulation transition.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	UserID        string    `json:"userId"`
	BookID        int64     `json:"bookId,omitempty"`
	CopyID        int64     `json:"copyId,omitempty"`
	LoanID        int64     `json:"loanId,omitempty"`
	ReservationID int64     `json:"reservationId,omitempty"`
	BillID        int64     `json:"billId,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
