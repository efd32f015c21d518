package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid indica que el valor no se pudo interpretar como numero internacional valido.
var ErrInvalid = errors.New("invalid phone number")

// Canonicalize valida un numero de telefono y lo normaliza a formato E.164.
// region es la region por defecto para numeros sin prefijo "+"; con region vacia
// solo se aceptan numeros internacionales completos.
func Canonicalize(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalid
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", ErrInvalid
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
