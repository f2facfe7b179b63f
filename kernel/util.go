package kernel

import (
	"github.com/hhcho/ring2k-kernel/comm"
)

const commSum = comm.Sum

func wrapCommErr(err error) error {
	return newErr(ErrCommunication, "%v", err)
}
