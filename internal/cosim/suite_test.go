package cosim_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCosim(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cosim Suite")
}
