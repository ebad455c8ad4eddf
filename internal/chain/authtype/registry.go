package authtype

import (
	"fmt"
	"sort"
)

// Config is a typed per-AuthType configuration, validated when the chain
// configuration is loaded.
type Config interface {
	Validate() error
}

// Factory builds an AuthType from its typed config.
type Factory struct {
	NewConfig func() Config
	Build     func(cfg Config, deps Dependencies) (AuthType, error)
}

// Registry maps type names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in types.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(TypePassword, Factory{
		NewConfig: func() Config { return &PasswordConfig{} },
		Build: func(cfg Config, deps Dependencies) (AuthType, error) {
			return NewPassword(cfg.(*PasswordConfig), deps)
		},
	})
	r.Register(TypeOTPMail, Factory{
		NewConfig: func() Config { return &OTPMailConfig{} },
		Build: func(cfg Config, deps Dependencies) (AuthType, error) {
			return NewOTPMail(cfg.(*OTPMailConfig), deps)
		},
	})
	r.Register(TypePasswordForgotten, Factory{
		NewConfig: func() Config { return &PasswordForgottenConfig{} },
		Build: func(cfg Config, deps Dependencies) (AuthType, error) {
			return NewPasswordForgotten(cfg.(*PasswordForgottenConfig), deps)
		},
	})
	r.Register(TypeMailLink, Factory{
		NewConfig: func() Config { return &MailLinkConfig{} },
		Build: func(cfg Config, deps Dependencies) (AuthType, error) {
			return NewMailLink(cfg.(*MailLinkConfig), deps)
		},
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(typ string, f Factory) {
	r.factories[typ] = f
}

// Lookup returns the factory for typ.
func (r *Registry) Lookup(typ string) (Factory, error) {
	f, ok := r.factories[typ]
	if !ok {
		return Factory{}, fmt.Errorf("unknown auth type %q", typ)
	}
	return f, nil
}

// Types lists registered type names, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
