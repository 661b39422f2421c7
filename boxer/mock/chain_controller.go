// Package mock provides testify mocks of the driver's collaborators.
package mock

import (
	testifymock "github.com/stretchr/testify/mock"

	"boxer/core"
)

// ChainController is a mock of boxer.ChainController.
type ChainController struct {
	testifymock.Mock
}

// ProcessBlock provides a mock function with given fields: block
func (m *ChainController) ProcessBlock(block *core.BlockView) (bool, error) {
	ret := m.Called(block)

	var r0 bool
	if rf, ok := ret.Get(0).(func(*core.BlockView) bool); ok {
		r0 = rf(block)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(*core.BlockView) error); ok {
		r1 = rf(block)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

// NewChainController creates a mock that asserts its expectations on cleanup.
func NewChainController(t interface {
	testifymock.TestingT
	Cleanup(func())
}) *ChainController {
	m := &ChainController{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
