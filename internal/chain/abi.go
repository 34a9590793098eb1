package chain

// referralsABI holds the events of ReferralStorage, PositionManager/PositionRouter and BatchSender.
const referralsABI = `[
  {"type":"event","name":"RegisterCode","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":false},
    {"name":"code","type":"bytes32","indexed":false}]},
  {"type":"event","name":"SetCodeOwner","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":false},
    {"name":"newAccount","type":"address","indexed":false},
    {"name":"code","type":"bytes32","indexed":false}]},
  {"type":"event","name":"GovSetCodeOwner","anonymous":false,"inputs":[
    {"name":"code","type":"bytes32","indexed":false},
    {"name":"newAccount","type":"address","indexed":false}]},
  {"type":"event","name":"SetHandler","anonymous":false,"inputs":[
    {"name":"handler","type":"address","indexed":false},
    {"name":"isActive","type":"bool","indexed":false}]},
  {"type":"event","name":"SetReferrerDiscountShare","anonymous":false,"inputs":[
    {"name":"referrer","type":"address","indexed":false},
    {"name":"discountShare","type":"uint256","indexed":false}]},
  {"type":"event","name":"SetReferrerTier","anonymous":false,"inputs":[
    {"name":"referrer","type":"address","indexed":false},
    {"name":"tierId","type":"uint256","indexed":false}]},
  {"type":"event","name":"SetTier","anonymous":false,"inputs":[
    {"name":"tierId","type":"uint256","indexed":false},
    {"name":"totalRebate","type":"uint256","indexed":false},
    {"name":"discountShare","type":"uint256","indexed":false}]},
  {"type":"event","name":"SetTraderReferralCode","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":false},
    {"name":"code","type":"bytes32","indexed":false}]},
  {"type":"event","name":"IncreasePositionReferral","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":false},
    {"name":"sizeDelta","type":"uint256","indexed":false},
    {"name":"marginFeeBasisPoints","type":"uint256","indexed":false},
    {"name":"referralCode","type":"bytes32","indexed":false},
    {"name":"referrer","type":"address","indexed":false}]},
  {"type":"event","name":"DecreasePositionReferral","anonymous":false,"inputs":[
    {"name":"account","type":"address","indexed":false},
    {"name":"sizeDelta","type":"uint256","indexed":false},
    {"name":"marginFeeBasisPoints","type":"uint256","indexed":false},
    {"name":"referralCode","type":"bytes32","indexed":false},
    {"name":"referrer","type":"address","indexed":false}]},
  {"type":"event","name":"BatchSend","anonymous":false,"inputs":[
    {"name":"typeId","type":"uint256","indexed":true},
    {"name":"token","type":"address","indexed":true},
    {"name":"accounts","type":"address[]","indexed":false},
    {"name":"amounts","type":"uint256[]","indexed":false}]}
]`
