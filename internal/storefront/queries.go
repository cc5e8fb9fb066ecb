package storefront

const cartFields = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  cost {
    subtotalAmount { amount currencyCode }
    totalTaxAmount { amount currencyCode }
    totalAmount { amount currencyCode }
  }
  lines(first: 250) {
    edges {
      node {
        id
        quantity
        cost {
          amountPerQuantity { amount currencyCode }
          totalAmount { amount currencyCode }
        }
        merchandise {
          ... on ProductVariant {
            id
            title
            product { title }
          }
        }
      }
    }
  }
}
`

const userErrorFields = `userErrors { field message code }`

const queryCartCreate = `mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const queryCartLinesAdd = `mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const queryCartLinesUpdate = `mutation cartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const queryCartLinesRemove = `mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const queryCart = `query cart($id: ID!) {
  cart(id: $id) { ...CartFields }
}` + cartFields

const queryCustomerCreate = `mutation customerCreate($input: CustomerCreateInput!) {
  customerCreate(input: $input) {
    customer { id email firstName lastName }
    customerUserErrors { field message code }
  }
}`

const queryCustomerAccessTokenCreate = `mutation customerAccessTokenCreate($input: CustomerAccessTokenCreateInput!) {
  customerAccessTokenCreate(input: $input) {
    customerAccessToken { accessToken expiresAt }
    customerUserErrors { field message code }
  }
}`

const queryCustomer = `query customer($token: String!) {
  customer(customerAccessToken: $token) { id email firstName lastName }
}`

const queryProducts = `query products($ids: [ID!]!) {
  nodes(ids: $ids) {
    ... on Product {
      id
      handle
      title
      availableForSale
      featuredImage { url }
      priceRange { minVariantPrice { amount currencyCode } }
    }
  }
}`
