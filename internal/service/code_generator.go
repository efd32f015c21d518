package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultInviteCodeLength es el largo de los codigos de invitacion emitidos al activar.
const DefaultInviteCodeLength = 6

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// CodeGenerator produce candidatos de OTP y de codigos de invitacion.
// Solo genera valores; la unicidad la garantiza quien los consume: el claim
// atomico del OTPStore para OTPs y el indice unico de accounts.invite_code
// para codigos de invitacion.
type CodeGenerator struct{}

// OTP devuelve un codigo numerico de 4 digitos.
func (CodeGenerator) OTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// InviteCode devuelve un codigo alfanumerico de largo length. Los codigos de
// invitacion otorgan credito de referido, por eso salen de crypto/rand.
func (CodeGenerator) InviteCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultInviteCodeLength
	}
	code := make([]byte, length)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code), nil
}
