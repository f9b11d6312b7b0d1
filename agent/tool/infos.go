package tool

import (
	"sort"

	"github.com/cloudwego/eino/schema"
)

// Kind names one callable tool. The set is closed: every Kind has exactly
// one binding in the registry.
type Kind string

const (
	KindSearchProducts    Kind = "searchProducts"
	KindGetProductDetails Kind = "getProductDetails"
	KindCreateCart        Kind = "createCart"
	KindGetCart           Kind = "getCart"
	KindUpdateCart        Kind = "updateCart"
	KindClearCart         Kind = "clearCart"
)

// Kinds lists every tool in the order it is offered to the model.
var Kinds = []Kind{
	KindSearchProducts,
	KindGetProductDetails,
	KindCreateCart,
	KindGetCart,
	KindUpdateCart,
	KindClearCart,
}

func cartItemsParam(desc, qtyDesc string) *schema.ParameterInfo {
	return &schema.ParameterInfo{
		Type:     schema.Array,
		Desc:     desc,
		Required: true,
		ElemInfo: &schema.ParameterInfo{
			Type: schema.Object,
			SubParams: map[string]*schema.ParameterInfo{
				"product_id": {Type: schema.Integer, Desc: "ID del producto", Required: true},
				"qty":        {Type: schema.Integer, Desc: qtyDesc, Required: true},
			},
		},
	}
}

var toolParams = map[Kind]map[string]*schema.ParameterInfo{
	KindSearchProducts: {
		"query":    {Type: schema.String, Desc: `Texto de búsqueda libre (ej: "camiseta roja", "deportivo", "pantalón")`},
		"category": {Type: schema.String, Desc: "Filtrar por categoría: Casual, Deportivo, Formal"},
		"size":     {Type: schema.String, Desc: "Filtrar por talla: S, M, L, XL, XXL"},
		"color":    {Type: schema.String, Desc: "Filtrar por color: Rojo, Azul, Verde, Negro, Blanco, Amarillo, Gris"},
	},
	KindGetProductDetails: {
		"productId": {Type: schema.Integer, Desc: "ID numérico del producto (ej: 1, 32, 100)", Required: true},
	},
	KindCreateCart: {
		"items": cartItemsParam("Lista de productos a agregar al carrito", "Cantidad a comprar"),
	},
	KindGetCart: {},
	KindUpdateCart: {
		"items": cartItemsParam("Lista de cambios al carrito", "Nueva cantidad (0 para eliminar)"),
	},
	KindClearCart: {},
}

var toolDescriptions = map[Kind]string{
	KindSearchProducts:    "Busca productos en el catálogo. Puedes buscar por texto (nombre, descripción, categoría, color) o filtrar por campos específicos.",
	KindGetProductDetails: "Obtiene los detalles completos de un producto específico por su ID.",
	KindCreateCart:        "Crea un carrito de compras con los productos especificados. Usa esto cuando el cliente quiera comprar productos.",
	KindGetCart:           "Obtiene el carrito actual del cliente con todos los productos y el total.",
	KindUpdateCart:        "Actualiza el carrito: cambia cantidades o elimina productos (poniendo qty=0).",
	KindClearCart:         "Elimina el carrito completo del cliente, empezando de cero.",
}

func toolInfo(kind Kind) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        string(kind),
		Desc:        toolDescriptions[kind],
		ParamsOneOf: schema.NewParamsOneOfByParams(toolParams[kind]),
	}
}

// JSONSchema renders the parameters of the named tool as a JSON Schema
// object, for model clients that take raw schemas.
func JSONSchema(name string) (map[string]any, bool) {
	params, ok := toolParams[Kind(name)]
	if !ok {
		return nil, false
	}
	return objectSchema(params), true
}

func objectSchema(params map[string]*schema.ParameterInfo) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for name, p := range params {
		props[name] = paramSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out
}

func paramSchema(p *schema.ParameterInfo) map[string]any {
	if p.Type == schema.Object {
		out := objectSchema(p.SubParams)
		if p.Desc != "" {
			out["description"] = p.Desc
		}
		return out
	}
	out := map[string]any{"type": string(p.Type)}
	if p.Desc != "" {
		out["description"] = p.Desc
	}
	if len(p.Enum) > 0 {
		out["enum"] = p.Enum
	}
	if p.Type == schema.Array && p.ElemInfo != nil {
		out["items"] = paramSchema(p.ElemInfo)
	}
	return out
}
