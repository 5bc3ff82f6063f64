package lifecycle

import (
	"errors"
	"fmt"
)

// State 对应 ServiceWorker.state。
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

var (
	// ErrInvalidTransition 表示状态迁移不合法，例如跳过 installed 直接激活。
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNoWaitingWorker 表示调用 Activate 时没有已安装待激活的 worker。
	ErrNoWaitingWorker = errors.New("no waiting worker to activate")
)

var transitions = map[State][]State{
	StateInstalling: {StateInstalled, StateRedundant},
	StateInstalled:  {StateActivating, StateRedundant},
	StateActivating: {StateActivated, StateRedundant},
	StateActivated:  {StateRedundant},
}

// CanTransition 判断 from -> to 是否为合法迁移。redundant 是终态。
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
