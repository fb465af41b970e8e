package raktr_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestReactorSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "raktr reactor suite")
}
