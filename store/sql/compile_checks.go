package sqlstore

import "github.com/naashmtp/odoo-shopify-connector/core"

var (
	_ core.JobStore          = (*JobStore)(nil)
	_ core.ShadowStore       = (*ShadowStore)(nil)
	_ core.RegistrationStore = (*RegistrationStore)(nil)
	_ core.RegistrationStore = (*CachedRegistrationStore)(nil)
	_ core.DeliveryLogStore  = (*DeliveryLogStore)(nil)
)
