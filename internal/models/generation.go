package models

// Generation model tags. Exactly one model routes to the workflow-graph
// provider; everything else is a prediction-style job.
const (
	ModelPro           = "flux-pro"
	ModelSchnell       = "flux-schnell"
	ModelDev           = "flux-dev"
	ModelGeneral       = "flux-general"
	ModelFreeSchnell   = "flux-free-schnell"
	ModelKreaDev       = "flux-krea-dev"
	ModelClothingTryon = "clothing-tryon"
)

// CreditCost is the ledger charge per generation, keyed by model tag.
var CreditCost = map[string]int{
	ModelPro:           10,
	ModelSchnell:       2,
	ModelDev:           5,
	ModelGeneral:       5,
	ModelFreeSchnell:   0,
	ModelKreaDev:       5,
	ModelClothingTryon: 10,
}

// FreeMonthlyLimit caps free-tier generations per calendar month.
const FreeMonthlyLimit = 5

// KnownModel reports whether the tag names a model this service accepts.
func KnownModel(model string) bool {
	_, ok := CreditCost[model]
	return ok
}

// UsesWorkflowProvider reports whether tasks for the given model are executed
// by the workflow-graph provider rather than the prediction API.
func UsesWorkflowProvider(model string) bool {
	return model == ModelClothingTryon
}
