package repository

import (
	"fmt"
	"sync"

	"github.com/luckyComet55/junction-control/pkg/fsm"
)

const (
	OPERATOR_STATE_IDLE     fsm.State = "IDLE"
	OPERATOR_STATE_WATCHING fsm.State = "WATCHING"
)

const (
	OPERATOR_EVENT_WATCH   fsm.Event = "watch"
	OPERATOR_EVENT_UNWATCH fsm.Event = "unwatch"
)

// NewOperatorMachine is the prototype copied for every operator.
func NewOperatorMachine() *fsm.FSM {
	return fsm.NewFSM(OPERATOR_STATE_IDLE).
		Transition(OPERATOR_STATE_IDLE, OPERATOR_EVENT_WATCH, OPERATOR_STATE_WATCHING).
		Transition(OPERATOR_STATE_WATCHING, OPERATOR_EVENT_UNWATCH, OPERATOR_STATE_IDLE)
}

type OperatorRepository interface {
	GetOperatorState(int64) (fsm.State, bool)
	CheckOperatorExists(int64) bool
	AddOperator(int64) error
	RemoveOperator(int64) error
	TriggerOperatorTransition(int64, fsm.Event, ...any) error
	SetOperatorData(int64, string, any) error
	GetOperatorData(int64, string) (any, error)
	TakeOperatorData(int64, string) (any, error)
}

type operatorRepository struct {
	mu             sync.Mutex
	operatorStates map[int64]*fsm.FSM
	fsmOriginal    *fsm.FSM
}

func NewOperatorRepository(f *fsm.FSM) OperatorRepository {
	return &operatorRepository{
		operatorStates: make(map[int64]*fsm.FSM),
		fsmOriginal:    f,
	}
}

func (repo *operatorRepository) get(operatorID int64) (*fsm.FSM, error) {
	f, ok := repo.operatorStates[operatorID]
	if !ok {
		return nil, fmt.Errorf("operator with ID %d does not exist", operatorID)
	}
	return f, nil
}

func (repo *operatorRepository) GetOperatorState(operatorID int64) (fsm.State, bool) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, ok := repo.operatorStates[operatorID]
	if !ok {
		return "", ok
	}
	return f.GetCurrent(), ok
}

func (repo *operatorRepository) CheckOperatorExists(operatorID int64) bool {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	_, ok := repo.operatorStates[operatorID]
	return ok
}

func (repo *operatorRepository) AddOperator(operatorID int64) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.operatorStates[operatorID]; ok {
		return fmt.Errorf("operator with ID %d already exists", operatorID)
	}
	repo.operatorStates[operatorID] = repo.fsmOriginal.Copy(repo.fsmOriginal.GetInitial())
	return nil
}

func (repo *operatorRepository) RemoveOperator(operatorID int64) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	delete(repo.operatorStates, operatorID)
	return nil
}

func (repo *operatorRepository) TriggerOperatorTransition(operatorID int64, event fsm.Event, input ...any) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := repo.get(operatorID)
	if err != nil {
		return err
	}
	return f.Trigger(event, input...)
}

func (repo *operatorRepository) SetOperatorData(operatorID int64, key string, value any) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := repo.get(operatorID)
	if err != nil {
		return err
	}
	f.GetContext().Data[key] = value
	return nil
}

func (repo *operatorRepository) GetOperatorData(operatorID int64, key string) (any, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := repo.get(operatorID)
	if err != nil {
		return nil, err
	}
	value, ok := f.GetContext().Data[key]
	if !ok {
		return nil, fmt.Errorf("no data with key: %s", key)
	}
	return value, nil
}

// TakeOperatorData returns the value and removes it in one step.
func (repo *operatorRepository) TakeOperatorData(operatorID int64, key string) (any, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	f, err := repo.get(operatorID)
	if err != nil {
		return nil, err
	}
	value, ok := f.GetContext().Data[key]
	if !ok {
		return nil, fmt.Errorf("no data with key: %s", key)
	}
	delete(f.GetContext().Data, key)
	return value, nil
}
