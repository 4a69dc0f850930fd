package pipeline

// DeliveryStage returns stage 12: writes the final reply as a
// PENDING_DELIVERY job result. The delivery itself is confirmed later out
// of band, via the confirm-delivery HTTP endpoint (spec §6), which
// transitions the row to DELIVERED.
func DeliveryStage(store DeliveryStore) Stage {
	return func(g *GenerationContext) error {
		return store.WritePendingDelivery(g.Ctx, g.JobID, g.FinalReply)
	}
}
