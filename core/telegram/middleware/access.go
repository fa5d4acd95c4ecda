package middleware

import tele "gopkg.in/telebot.v4"

// OperatorOptions defines how operator-only checks should behave.
type OperatorOptions struct {
	// OperatorIDs is the set of Telegram user IDs allowed through.
	OperatorIDs []int64
	OnReject    tele.HandlerFunc
}

func (o OperatorOptions) allows(id int64) bool {
	for _, op := range o.OperatorIDs {
		if op == id {
			return true
		}
	}
	return false
}

// OperatorOnlyMiddleware ensures that only configured operators can invoke downstream handlers.
func OperatorOnlyMiddleware(opts OperatorOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if len(opts.OperatorIDs) > 0 && !opts.allows(sender.ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
