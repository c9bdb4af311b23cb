package strategy

type StateMachine struct {
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(t Transition) State {
	s.State = nextState(s.State, t)
	return s.State
}

func (s *StateMachine) Deployed() bool {
	return s.State == StateDeployed
}

func nextState(current State, t Transition) State {
	switch current {
	case StateIdle:
		if t == TransitionOpen {
			return StateDeployed
		}
	case StateDeployed:
		if t == TransitionClose {
			return StateIdle
		}
	}
	return current
}
