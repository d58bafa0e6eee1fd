package dto

import (
	"strconv"

	"github.com/hugh/asset-shipper/internal/api/validation"
)

// ReconcileJobRequest starts a reconciliation of one mapper output prefix.
// The tenant comes from the caller's token.
type ReconcileJobRequest struct {
	DataSource           string   `json:"data_source"`
	SourceDisplayName    string   `json:"source_display_name,omitempty"`
	ReportingSource      string   `json:"reporting_source,omitempty"`
	ReportingService     string   `json:"reporting_service,omitempty"`
	ReportingServiceName string   `json:"reporting_service_name,omitempty"`
	Prefix               string   `json:"prefix"`
	AssetTypes           []string `json:"asset_types,omitempty"`
}

const maxDisplayNameLength = 256

func (r ReconcileJobRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validation.IsValidSource(r.DataSource) {
		errors["data_source"] = "Invalid data source"
	}
	if r.ReportingSource != "" && !validation.IsValidSource(r.ReportingSource) {
		errors["reporting_source"] = "Invalid reporting source"
	}
	if r.ReportingService != "" && r.ReportingSource == "" {
		errors["reporting_service"] = "Reporting service requires a reporting source"
	}
	if r.ReportingServiceName != "" && r.ReportingSource == "" {
		errors["reporting_service_name"] = "Reporting service name requires a reporting source"
	} else if len(r.ReportingServiceName) > maxDisplayNameLength {
		errors["reporting_service_name"] = "Reporting service name is too long"
	}
	if len(r.SourceDisplayName) > maxDisplayNameLength {
		errors["source_display_name"] = "Source display name is too long"
	}
	if r.Prefix == "" {
		errors["prefix"] = "Prefix is required"
	} else if !validation.IsValidPrefix(r.Prefix) {
		errors["prefix"] = "Invalid prefix"
	}
	validateAssetTypes(r.AssetTypes, errors)

	return errors
}

// AssetStateJobRequest starts an asset state pass for one data source.
type AssetStateJobRequest struct {
	DataSource string   `json:"data_source"`
	AssetTypes []string `json:"asset_types,omitempty"`
}

func (r AssetStateJobRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validation.IsValidSource(r.DataSource) {
		errors["data_source"] = "Invalid data source"
	}
	validateAssetTypes(r.AssetTypes, errors)

	return errors
}

func validateAssetTypes(assetTypes []string, errors map[string]string) {
	for i, t := range assetTypes {
		if !validation.IsValidAssetType(t) {
			errors["asset_types"] = "Invalid asset type at index " + strconv.Itoa(i)
			return
		}
	}
}
