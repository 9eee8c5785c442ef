package handler

import (
	"sync"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/shopspring/decimal"
)

// regStep is the current step of the registration conversation.
type regStep int

const (
	stepTariffKind regStep = iota
	stepElectricityBand
	stepElectricityEnergy
	stepElectricityFee
	stepAskElectricityConsumption
	stepElectricityConsumption
	stepElectricityConsumptionF1
	stepElectricityConsumptionF2
	stepElectricityConsumptionF3
	stepAskGas
	stepGasEnergy
	stepGasFee
	stepAskGasConsumption
	stepGasConsumption
)

// session holds a registration conversation in progress for one chat.
type session struct {
	step regStep

	kind model.Kind
	band model.Band

	elecEnergy decimal.Decimal
	elecFee    decimal.Decimal
	elecCons   map[model.BandSlot]decimal.Decimal

	hasGas    bool
	gasEnergy decimal.Decimal
	gasFee    decimal.Decimal
	gasCons   map[model.BandSlot]decimal.Decimal
}

// sessionManager tracks in-flight registration conversations keyed by chat ID.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[int64]*session)}
}

func (m *sessionManager) start(chatID int64) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &session{step: stepTariffKind}
	m.sessions[chatID] = s
	return s
}

func (m *sessionManager) get(chatID int64) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

func (m *sessionManager) active(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[chatID]
	return ok
}

func (m *sessionManager) end(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}
